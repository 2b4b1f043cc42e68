package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskedDSNHidesPassword(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.internal",
		DBPort:     "5432",
		DBUser:     "promo",
		DBName:     "promo_db",
		DBSSLMode:  "require",
		DBPassword: "s3cret",
	}

	masked := cfg.MaskedDSN()
	assert.NotContains(t, masked, "s3cret")
	assert.Contains(t, masked, "promo:********@db.internal")
}

func TestGraphConfigured(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.GraphConfigured())

	cfg.Neo4jURI = "  "
	assert.False(t, cfg.GraphConfigured())

	cfg.Neo4jURI = "neo4j://graph:7687"
	assert.True(t, cfg.GraphConfigured())
}
