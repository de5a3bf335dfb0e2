package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/zaqqye/complab_backend/internal/models"
	"github.com/zaqqye/complab_backend/internal/testfixtures"
)

func TestListPreservesInsertionOrder(t *testing.T) {
	db := testfixtures.NewDB(t)
	c := testfixtures.Computer(t, db)
	sink := NewSink(db, zaptest.NewLogger(t))
	ctx := context.Background()
	at := testfixtures.ReferenceTime()

	types := []string{models.ActivityOnline, models.ActivityUnlocked, models.ActivitySessionStart, models.ActivityOffline}
	for i, typ := range types {
		require.NoError(t, sink.Record(ctx, Entry{ComputerID: c.ID, Type: typ, Reason: "test", LoggedAt: at.Add(time.Duration(i) * time.Second)}))
	}

	all, err := sink.List(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, e := range all {
		assert.Equal(t, types[i], e.ActivityType)
	}

	latest, err := sink.List(ctx, c.ID, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, models.ActivitySessionStart, latest[0].ActivityType)
	assert.Equal(t, models.ActivityOffline, latest[1].ActivityType)
}

func TestRecordTxFailureDoesNotAbortTransaction(t *testing.T) {
	db := testfixtures.NewDB(t)
	c := testfixtures.Computer(t, db)
	sink := NewSink(db, zaptest.NewLogger(t))

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_activity", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Model.(*models.ComputerActivityLog); ok {
			tx.AddError(errors.New("disk full"))
		}
	}))
	t.Cleanup(func() { _ = db.Callback().Create().Remove("test:fail_activity") })

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Computer{ID: c.ID}).Update("is_online", true).Error; err != nil {
			return err
		}
		sink.RecordTx(tx, Entry{ComputerID: c.ID, Type: models.ActivityOnline, LoggedAt: time.Now().UTC()})
		return nil
	})
	require.NoError(t, err)

	assert.True(t, testfixtures.Reload(t, db, c.ID).IsOnline)
	assert.Empty(t, testfixtures.Activity(t, db, c.ID))
}
