package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/notchkit/pkg/descriptor"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		method Method
		op     Op
		kind   descriptor.Kind
	}{
		{MethodRequestAuthorization, OpRequestAuthorization, ""},
		{MethodCheckAuthorization, OpCheckAuthorization, ""},
		{MethodGetVersion, OpGetVersion, ""},
		{MethodPresentLiveActivity, OpPresent, descriptor.KindLiveActivity},
		{MethodUpdateLockScreenWidget, OpUpdate, descriptor.KindLockScreenWidget},
		{MethodDismissNotchExperience, OpDismiss, descriptor.KindNotchExperience},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			op, kind, ok := Lookup(tt.method)
			require.True(t, ok)
			assert.Equal(t, tt.op, op)
			assert.Equal(t, tt.kind, kind)
		})
	}

	_, _, ok := Lookup("launchMissiles")
	assert.False(t, ok)
}

func TestMethodForCoversEveryKind(t *testing.T) {
	for _, kind := range descriptor.Kinds() {
		for _, op := range []Op{OpPresent, OpUpdate, OpDismiss} {
			m, ok := MethodFor(op, kind)
			require.True(t, ok, "%s %s", op, kind)

			gotOp, gotKind, _ := Lookup(m)
			assert.Equal(t, op, gotOp)
			assert.Equal(t, kind, gotKind)
		}
		assert.NotEmpty(t, DismissEvent(kind))
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("call failed: %w", Errorf(CodeUnauthorized, "nope"))
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, errors.Is(err, ErrFeatureDisabled))
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))
	assert.Equal(t, CodeFeatureDisabled, AsError(ErrFeatureDisabled).Code)

	fe := &descriptor.FieldError{Field: "id", Reason: "is required"}
	pe := AsError(fmt.Errorf("validate: %w", fe))
	assert.Equal(t, CodeMalformedDescriptor, pe.Code)
	assert.Equal(t, "id", pe.Field)

	pe = AsError(fmt.Errorf("%w: bad json", descriptor.ErrDecode))
	assert.Equal(t, CodeDecodeFailure, pe.Code)
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"type":"request","seq":7,"method":"presentLiveActivity",
		"params":{"descriptor":{"id":"a","title":"t"}}}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), req.Seq)
	assert.Equal(t, MethodPresentLiveActivity, req.Method)
	assert.JSONEq(t, `{"id":"a","title":"t"}`, string(req.Params.Descriptor))

	req, err = DecodeRequest([]byte(`{"type":"request","seq":9,"method":5}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, Errorf(CodeDecodeFailure, ""))
	assert.Equal(t, uint64(9), req.Seq)

	_, err = DecodeRequest([]byte(`{"type":"reply","seq":1}`))
	assert.Error(t, err)

	_, err = DecodeRequest([]byte(`garbage`))
	assert.Error(t, err)
}

func TestReplyWireShape(t *testing.T) {
	data, err := Marshal(Granted(3, true))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reply","seq":3,"ok":true,"granted":true}`, string(data))

	data, err = Marshal(Failure(4, &descriptor.FieldError{Field: "priority", Reason: "bad"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reply","seq":4,"ok":false,
		"error":{"code":"malformedDescriptor","message":"bad","field":"priority"}}`, string(data))
}

func TestDecodeInbound(t *testing.T) {
	data, err := Marshal(Dismissed(EventWidgetDismissed, "w1"))
	require.NoError(t, err)

	frame, err := DecodeInbound(data)
	require.NoError(t, err)
	n, ok := frame.(Notification)
	require.True(t, ok)
	assert.Equal(t, EventWidgetDismissed, n.Event)
	assert.Equal(t, "w1", n.ID)

	data, err = Marshal(Version(1, "1.2.3"))
	require.NoError(t, err)
	frame, err = DecodeInbound(data)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", frame.(Reply).Version)

	_, err = DecodeInbound([]byte(`{"type":"request"}`))
	assert.Error(t, err)
}
