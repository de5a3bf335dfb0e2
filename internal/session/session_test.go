package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/complab_backend/internal/testfixtures"
)

func TestCloseOpenSetsUptime(t *testing.T) {
	db := testfixtures.NewDB(t)
	c := testfixtures.Computer(t, db)
	s := testfixtures.Student(t, db, "Ana", "Cruz", "RF-1")
	start := testfixtures.ReferenceTime()
	testfixtures.OpenSession(t, db, s, c, start)

	closed, err := CloseOpenTx(db, c.ID, start.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, int64(5400), closed[0].Uptime)
	require.NotNil(t, closed[0].EndTime)
	assert.Zero(t, testfixtures.OpenSessions(t, db, c.ID))
}

func TestCloseOpenClampsNegativeUptime(t *testing.T) {
	db := testfixtures.NewDB(t)
	c := testfixtures.Computer(t, db)
	s := testfixtures.Student(t, db, "Ana", "Cruz", "RF-2")
	start := testfixtures.ReferenceTime()
	testfixtures.OpenSession(t, db, s, c, start)

	closed, err := CloseOpenTx(db, c.ID, start.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Zero(t, closed[0].Uptime)
}

func TestCloseOpenNoSessions(t *testing.T) {
	db := testfixtures.NewDB(t)
	c := testfixtures.Computer(t, db)

	closed, err := CloseOpenTx(db, c.ID, testfixtures.ReferenceTime())
	require.NoError(t, err)
	assert.Empty(t, closed)
}

func TestOpenCopiesStudentSnapshot(t *testing.T) {
	db := testfixtures.NewDB(t)
	c := testfixtures.Computer(t, db)
	s := testfixtures.Student(t, db, "Ben", "Reyes", "RF-3")

	l, err := OpenTx(db, s, c, "BS Computer Science", "3rd Year", testfixtures.ReferenceTime())
	require.NoError(t, err)
	assert.Equal(t, c.IPAddress, l.IPAddress)
	assert.Equal(t, c.MACAddress, l.MACAddress)
	assert.Equal(t, "3rd Year", l.YearLevel)
	assert.Nil(t, l.EndTime)

	open, err := FindOpenTx(db, c.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, s.ID, open[0].StudentID)
}
