package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/complab_backend/internal/apperr"
	"github.com/zaqqye/complab_backend/internal/models"
	"github.com/zaqqye/complab_backend/internal/testfixtures"
)

func TestFindByRFID(t *testing.T) {
	db := testfixtures.NewDB(t)
	s := testfixtures.Student(t, db, "Ana", "Cruz", "04A1B2C3")
	dir := New(db)

	r, err := dir.FindByRFID(context.Background(), "04A1B2C3")
	require.NoError(t, err)
	assert.Equal(t, s.ID, r.Student.ID)
	assert.Equal(t, "BS Computer Science", r.Program)
	assert.Equal(t, "3rd Year", r.YearLevel)
	assert.Equal(t, "Ana Cruz", r.Summary().Name)
}

func TestFindByRFIDFallsBackWithoutCatalog(t *testing.T) {
	db := testfixtures.NewDB(t)
	require.NoError(t, db.Create(&models.Student{StudentID: "2025-99999", FirstName: "Lee", RFIDUID: "CARD-X"}).Error)

	r, err := New(db).FindByRFID(context.Background(), "CARD-X")
	require.NoError(t, err)
	assert.Equal(t, "N/A", r.Program)
	assert.Equal(t, "N/A", r.YearLevel)
}

func TestFindByRFIDNotFound(t *testing.T) {
	db := testfixtures.NewDB(t)

	_, err := New(db).FindByRFID(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, "Student not found", err.Error())
}

func TestAssignedComputerIDsInLab(t *testing.T) {
	db := testfixtures.NewDB(t)
	labA := testfixtures.Lab(t, db, "Lab A")
	labB := testfixtures.Lab(t, db, "Lab B")
	a := testfixtures.Computer(t, db, testfixtures.InLab(labA))
	b := testfixtures.Computer(t, db, testfixtures.InLab(labB))
	s := testfixtures.Student(t, db, "Ana", "Cruz", "RF-1")
	testfixtures.Assign(t, db, s, a)
	testfixtures.Assign(t, db, s, b)
	dir := New(db)
	ctx := context.Background()

	all, err := dir.AssignedComputerIDs(ctx, s.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{a.ID, b.ID}, all)

	inB, err := dir.AssignedComputerIDsInLab(ctx, s.ID, labB.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{b.ID}, inB)
}

func TestBulkAssignReportsConflicts(t *testing.T) {
	db := testfixtures.NewDB(t)
	lab := testfixtures.Lab(t, db, "Lab A")
	target := testfixtures.Computer(t, db, testfixtures.InLab(lab))
	other := testfixtures.Computer(t, db, testfixtures.InLab(lab))
	s1 := testfixtures.Student(t, db, "Ana", "Cruz", "RF-1")
	s2 := testfixtures.Student(t, db, "Ben", "Reyes", "RF-2")
	s3 := testfixtures.Student(t, db, "Cara", "Lim", "RF-3")
	testfixtures.Assign(t, db, s3, other)

	res, err := New(db).BulkAssign(context.Background(), target.ID, []uint{s1.ID, s2.ID, s3.ID, s1.ID})
	require.NoError(t, err)
	require.Len(t, res.Assigned, 2)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "Cara Lim", res.Conflicts[0].Name)
	assert.Equal(t, other.ID, res.Conflicts[0].ComputerID)

	var n int64
	require.NoError(t, db.Model(&models.ComputerStudent{}).Where("computer_id = ?", target.ID).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestBulkAssignRequiresLab(t *testing.T) {
	db := testfixtures.NewDB(t)
	c := testfixtures.Computer(t, db)
	s := testfixtures.Student(t, db, "Ana", "Cruz", "RF-1")

	_, err := New(db).BulkAssign(context.Background(), c.ID, []uint{s.ID})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestBulkAssignUnknownStudent(t *testing.T) {
	db := testfixtures.NewDB(t)
	lab := testfixtures.Lab(t, db, "Lab A")
	c := testfixtures.Computer(t, db, testfixtures.InLab(lab))

	_, err := New(db).BulkAssign(context.Background(), c.ID, []uint{999})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
