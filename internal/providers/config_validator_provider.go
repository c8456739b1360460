package providers

import (
	"errors"
	"fmt"
	"github.com/gookit/validate"
	"streamflix/internal/structures"
)

type CnfValidatorInterface interface {
	Validate() error
}

type CnfValidator struct {
	conf *structures.Config
}

func NewCnfValidator(conf *structures.Config) CnfValidatorInterface {
	return &CnfValidator{conf: conf}
}

func (cv *CnfValidator) Validate() error {
	sections := []interface{}{
		&cv.conf.WebServer,
		&cv.conf.Logger,
		&cv.conf.Persistence,
		&cv.conf.Storage,
	}
	for _, section := range sections {
		v := validate.Struct(section)
		if !v.Validate() {
			return fmt.Errorf("invalid config: %s", v.Errors.One())
		}
	}

	if cv.conf.Storage.Driver == "postgres" && cv.conf.Postgres.DSN == "" {
		return errors.New("invalid config: postgres.dsn is required for the postgres driver")
	}
	if cv.conf.Redis.Enabled && cv.conf.Redis.Addr == "" {
		return errors.New("invalid config: redis.addr is required when redis is enabled")
	}
	if cv.conf.Archive.Enabled && cv.conf.Archive.Dir == "" {
		return errors.New("invalid config: archive.dir is required when the archive is enabled")
	}
	if !cv.conf.Auth.DemoMode && cv.conf.Auth.BotToken == "" {
		return errors.New("invalid config: auth.botToken is required outside demo mode")
	}
	return nil
}
