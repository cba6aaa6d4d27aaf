package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pushrelay/pushrelay/internal/database/testutil"
)

func newTestServices(t *testing.T) (*NotificationService, *UserService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	notifications, err := NewNotificationService(db)
	require.NoError(t, err)

	users, err := NewUserService(db)
	require.NoError(t, err)

	return notifications, users, db
}

func int64Ptr(v int64) *int64 { return &v }
