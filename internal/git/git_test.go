package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/pkg/app.py b/pkg/app.py
index 1111111..2222222 100644
--- a/pkg/app.py
+++ b/pkg/app.py
@@ -3,0 +4,2 @@ class Dog:
+    def bark(self):
+        pass
@@ -10 +12 @@ def run():
-    old()
+    new()
@@ -20,2 +21,0 @@ def gone():
diff --git a/old.go b/old.go
deleted file mode 100644
index 3333333..0000000
--- a/old.go
+++ /dev/null
@@ -1,3 +0,0 @@
-package old
`

func TestParseDiff(t *testing.T) {
	changes, err := parseDiff([]byte(sampleDiff))
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, "pkg/app.py", changes[0].Path)
	assert.Equal(t, []int{4, 5, 12, 21}, changes[0].ChangedLines)

	assert.Equal(t, "old.go", changes[1].Path)
	assert.True(t, changes[1].Deleted)
	assert.Empty(t, changes[1].ChangedLines)
}

func TestParseDiff_Empty(t *testing.T) {
	changes, err := parseDiff(nil)
	require.NoError(t, err)
	assert.Empty(t, changes)
}
