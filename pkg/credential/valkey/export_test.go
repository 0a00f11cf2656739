package credentialvalkey

func (b *Backend) Key(name string) string { return b.key(name) }

func (b *Backend) Prefix() string { return b.prefix }
