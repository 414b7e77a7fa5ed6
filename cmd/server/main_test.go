package main

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/student-booking-engine/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBookingEngine(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "postgres")

	t.Run("Resolves Timezone", func(t *testing.T) {
		engine, ledger, err := newBookingEngine(config.BookingConfig{Timezone: "Asia/Colombo", MaxCalendarDays: 31}, db)
		require.NoError(t, err)
		assert.NotNil(t, engine)
		assert.NotNil(t, ledger)
	})

	t.Run("Invalid Timezone", func(t *testing.T) {
		engine, ledger, err := newBookingEngine(config.BookingConfig{Timezone: "Mars/Olympus"}, db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Mars/Olympus")
		assert.Nil(t, engine)
		assert.Nil(t, ledger)
	})
}
