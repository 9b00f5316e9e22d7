package audit

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Record(ctx context.Context, entry Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func TestMultiRecordsToEverySink(t *testing.T) {
	failing := new(MockSink)
	working := new(MockSink)
	entry := Entry{Kind: BanApplied, SubjectID: "1", At: time.Now()}

	failing.On("Record", mock.Anything, entry).Return(errors.New("queue down"))
	working.On("Record", mock.Anything, entry).Return(nil)

	require.NoError(t, Multi{failing, working}.Record(context.Background(), entry))

	failing.AssertExpectations(t)
	working.AssertExpectations(t)
}

func TestNop(t *testing.T) {
	require.NoError(t, Nop{}.Record(context.Background(), Entry{Kind: BanReversed}))
}
