package etcdclient

import (
	"strings"
	"time"

	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const (
	DefaultConnectionTimeout = 30 * time.Second
	DefaultKeepAliveTimeout  = 5 * time.Second
	DefaultKeepAliveInterval = 10 * time.Second
)

type Config struct {
	Endpoint          string        `mapstructure:"etcd-endpoint" usage:"Etcd endpoint."`
	Namespace         string        `mapstructure:"etcd-namespace" usage:"Etcd namespace."`
	Username          string        `mapstructure:"etcd-username" usage:"Etcd username."`
	Password          string        `mapstructure:"etcd-password" usage:"Etcd password." sensitive:"true"`
	ConnectTimeout    time.Duration `mapstructure:"etcd-connect-timeout" usage:"Etcd connect timeout." validate:"required"`
	KeepAliveTimeout  time.Duration `mapstructure:"etcd-keep-alive-timeout" usage:"Etcd keep alive timeout." validate:"required"`
	KeepAliveInterval time.Duration `mapstructure:"etcd-keep-alive-interval" usage:"Etcd keep alive interval." validate:"required"`
}

func NewConfig() Config {
	return Config{
		Namespace:         "price-tracker",
		ConnectTimeout:    DefaultConnectionTimeout,
		KeepAliveTimeout:  DefaultKeepAliveTimeout,
		KeepAliveInterval: DefaultKeepAliveInterval,
	}
}

func (c *Config) Normalize() {
	c.Endpoint = strings.Trim(c.Endpoint, " /")
	c.Namespace = strings.Trim(c.Namespace, " /") + "/"
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("etcd endpoint is not set")
	}
	if c.Namespace == "/" {
		return errors.New("etcd namespace is not set")
	}
	return nil
}
