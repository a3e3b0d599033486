package uploader

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObjectKeyIsDayPartitionedAndUnique(t *testing.T) {
	u := &Uploader{prefix: "sysmon"}
	now := time.Date(2017, 4, 28, 22, 8, 22, 0, time.UTC)

	key := u.objectKey(now)
	assert.Regexp(t, regexp.MustCompile(`^sysmon/2017/04/28/\d+-[0-9a-f-]{36}\.json$`), key)

	// Two uploads in the same instant must not collide.
	assert.NotEqual(t, key, u.objectKey(now))
}
