package android

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenPathNamespacedByTarget(t *testing.T) {
	tgt := target(t, "//apps:app")

	assert.Equal(t, "buck-out/gen/apps/app.apk", genPath(tgt, ".apk"))
	assert.Equal(t, "buck-out/gen/apps/app.unsigned.ap_", genPath(tgt, ".unsigned.ap_"))
	assert.Equal(t, "buck-out/gen/apps/nested/app.dex.jar", genPath(target(t, "//apps/nested:app"), ".dex.jar"))
}

func TestBinPathNamespacedByTarget(t *testing.T) {
	tgt := target(t, "//apps:app")

	assert.Equal(t, "buck-out/bin/apps/app", binPath(tgt, ""))
	assert.Equal(t, "buck-out/bin/apps/app/classes.dex", binPath(tgt, "/classes.dex"))
}
