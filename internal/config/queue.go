package config

import (
	"fmt"
)

type QueueConfig struct {
	Url                       string `mapstructure:"url"`
	QueueUser                 string `mapstructure:"queue-user"`
	QueuePassword             string `mapstructure:"queue-password"`
	DepositConfirmedQueueName string `mapstructure:"deposit-confirmed-queue-name"`
	ExpiredDepositQueueName   string `mapstructure:"expired-deposit-queue-name"`
	QueueProcessingTimeout    int    `mapstructure:"processing-timeout"`
}

func (cfg *QueueConfig) Validate() error {
	if cfg.Url == "" {
		return fmt.Errorf("missing queue url")
	}

	if cfg.DepositConfirmedQueueName == "" {
		return fmt.Errorf("missing deposit confirmed queue name")
	}

	if cfg.ExpiredDepositQueueName == "" {
		return fmt.Errorf("missing expired deposit queue name")
	}

	if cfg.QueueProcessingTimeout <= 0 {
		return fmt.Errorf("queue processing timeout must be a positive integer")
	}

	return nil
}
