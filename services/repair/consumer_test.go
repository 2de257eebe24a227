package main

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestDeathInfo(t *testing.T) {
	headers := amqp.Table{
		"x-death": []interface{}{
			amqp.Table{
				"reason": "rejected",
				"count":  int64(2),
				"queue":  "order_tasks",
			},
		},
	}

	info := deathInfo(headers)

	assert.Equal(t, "rejected", info.Reason)
	assert.Equal(t, int64(2), info.Count)
}

func TestDeathInfo_MissingHeader(t *testing.T) {
	info := deathInfo(amqp.Table{})

	assert.Equal(t, "unknown", info.Reason)
	assert.Equal(t, int64(0), info.Count)
}

func TestDeathInfo_MalformedHeader(t *testing.T) {
	headers := amqp.Table{
		"x-death": "not an array",
	}

	info := deathInfo(headers)

	assert.Equal(t, "unknown", info.Reason)
	assert.Equal(t, int64(0), info.Count)
}
