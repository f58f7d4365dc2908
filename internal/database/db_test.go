package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	got := dsn("app", "pw", "db.local", "3306", "seats")
	assert.Contains(t, got, "app:pw@tcp(db.local:3306)/seats")
	assert.Contains(t, got, "parseTime=true")
	assert.Contains(t, got, "charset=utf8mb4")
}

func TestDSNEmptyPassword(t *testing.T) {
	got := dsn("app", "", "db.local", "3306", "seats")
	assert.Contains(t, got, "app@tcp(db.local:3306)/seats")
	assert.NotContains(t, got, "app:@")
}
