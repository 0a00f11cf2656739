// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

const (
	StorageNone   = "none"
	StorageDisk   = "disk"
	StorageValKey = "valkey"
	StorageMemory = "memory"

	ClientAuthInsecure = "insecure"
	ClientAuthMTLS     = "mtls"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	Portal         Portal         `yaml:"portal"`
	Storage        Storage        `yaml:"storage"`
	TokenRefresher TokenRefresher `yaml:"tokenRefresher"`
}

type Portal struct {
	BaseURL        string        `yaml:"baseURL" default:"http://localhost:3000/api"`
	RequestTimeout time.Duration `yaml:"requestTimeout" default:"30s"`
	ClientAuth     ClientAuth    `yaml:"clientAuth"`
}

type ClientAuth struct {
	Type string          `yaml:"type" default:"insecure"`
	MTLS *commoncfg.MTLS `yaml:"mtls"`
}

type Storage struct {
	Durable   DurableStorage   `yaml:"durable"`
	Transient TransientStorage `yaml:"transient"`
}

// DurableStorage keeps remembered sessions across restarts.
type DurableStorage struct {
	Type   string `yaml:"type" default:"disk"`
	Disk   Disk   `yaml:"disk"`
	ValKey ValKey `yaml:"valkey"`
}

type Disk struct {
	Path string `yaml:"path" default:"$HOME/.portal-session/credentials"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
	Prefix    string              `yaml:"prefix" default:"portal-session"`
}

// TransientStorage keeps sessions for the lifetime of the process.
type TransientStorage struct {
	Type     string        `yaml:"type" default:"memory"`
	Lifetime time.Duration `yaml:"lifetime" default:"12h"`
}

type TokenRefresher struct {
	RefreshInterval time.Duration `yaml:"refreshInterval" default:"1m"`
	LeadTime        time.Duration `yaml:"leadTime" default:"2m"`
}
