package tracing

import (
	"testing"

	"example.com/flightguild/bot/config"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestTracerWithoutLicenseIsDisabled(t *testing.T) {
	tracer, err := NewTracer(config.TracingConfig{AppName: "Guild Bot"})
	require.NoError(t, err)

	txn := tracer.StartTransaction("interaction")
	require.Nil(t, txn)

	// all calls are safe on a nil transaction
	tracer.AddAttribute(txn, "command", "give_band")
	tracer.RecordError(txn, errors.New("boom"))
	tracer.EndTransaction(txn)
	tracer.Close()
}
