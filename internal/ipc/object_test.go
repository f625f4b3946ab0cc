package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInput struct {
	HostBundlePath string `json:"host_bundle_path"`
}

func TestObject_RoundTrip(t *testing.T) {
	in := fakeInput{HostBundlePath: "/Applications/Foo.app"}
	data, err := EncodeObject(TagInstallationInput, in)
	require.NoError(t, err)

	var out fakeInput
	require.NoError(t, DecodeObject(data, TagInstallationInput, &out))
	assert.Equal(t, in, out)
}

func TestObject_RejectsWrongTag(t *testing.T) {
	data, err := EncodeObject(TagAppcastItem, fakeInput{HostBundlePath: "x"})
	require.NoError(t, err)

	var out fakeInput
	err = DecodeObject(data, TagInstallationInput, &out)
	assert.ErrorIs(t, err, ErrUnknownObjectType)
}

func TestObject_RejectsMalformedEnvelope(t *testing.T) {
	var out fakeInput
	err := DecodeObject([]byte("not json"), TagInstallationInput, &out)
	assert.Error(t, err)
}
