// Package discovery регистрирует витрину в Consul.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
	log "github.com/sirupsen/logrus"
)

const (
	checkInterval   = "10s"
	checkTimeout    = "2s"
	deregisterAfter = "1m"
)

// agent: часть consulapi.Agent, нужная для регистрации.
type agent interface {
	ServiceRegister(service *consulapi.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

// Registration описывает экземпляр сервиса.
type Registration struct {
	Name     string
	HTTPAddr string
	// HealthURL опрашивается Consul; пусто — без проверки.
	HealthURL string
	Tags      []string
}

// Registrar регистрирует и снимает с учёта экземпляр сервиса.
type Registrar struct {
	agent  agent
	logger *log.Entry
	id     string
}

// NewRegistrar подключается к агенту Consul по адресу addr.
func NewRegistrar(addr string, logger *log.Entry) (*Registrar, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	return newRegistrar(client.Agent(), logger), nil
}

func newRegistrar(a agent, logger *log.Entry) *Registrar {
	if logger == nil {
		logger = log.WithField("component", "consul")
	}
	return &Registrar{agent: a, logger: logger}
}

// Register регистрирует экземпляр; идентификатор строится из имени, хоста и порта.
func (r *Registrar) Register(reg Registration) error {
	if strings.TrimSpace(reg.Name) == "" {
		return errors.New("service name is required")
	}
	host, port, err := splitAddr(reg.HTTPAddr)
	if err != nil {
		return err
	}

	id := fmt.Sprintf("%s-%s-%d", reg.Name, host, port)
	registration := &consulapi.AgentServiceRegistration{
		ID:      id,
		Name:    reg.Name,
		Address: host,
		Port:    port,
		Tags:    reg.Tags,
	}
	if reg.HealthURL != "" {
		registration.Check = &consulapi.AgentServiceCheck{
			HTTP:                           reg.HealthURL,
			Interval:                       checkInterval,
			Timeout:                        checkTimeout,
			DeregisterCriticalServiceAfter: deregisterAfter,
		}
	}

	if err := r.agent.ServiceRegister(registration); err != nil {
		return fmt.Errorf("register %s in consul: %w", id, err)
	}
	r.id = id
	r.logger.WithFields(log.Fields{"service_id": id, "address": host, "port": port}).Info("registered in consul")
	return nil
}

// Deregister снимает экземпляр с учёта; без регистрации ничего не делает.
func (r *Registrar) Deregister() error {
	if r == nil || r.id == "" {
		return nil
	}
	if err := r.agent.ServiceDeregister(r.id); err != nil {
		return fmt.Errorf("deregister %s from consul: %w", r.id, err)
	}
	r.logger.WithField("service_id", r.id).Info("deregistered from consul")
	r.id = ""
	return nil
}

// splitAddr разбирает ":8080" или "host:8080"; пустой хост заменяется именем машины.
func splitAddr(addr string) (string, int, error) {
	host, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("parse address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil || port <= 0 {
		return "", 0, fmt.Errorf("invalid port in address %q", addr)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		if hostname, herr := os.Hostname(); herr == nil && hostname != "" {
			host = hostname
		} else {
			host = "127.0.0.1"
		}
	}
	return host, port, nil
}
