package sklogimpl

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	lines []string
}

func (r *recorder) Log(_ int, severity Severity, format string, args ...interface{}) {
	if format == "" {
		r.lines = append(r.lines, severity.String()+" "+fmt.Sprint(args...))
		return
	}
	r.lines = append(r.lines, severity.String()+" "+fmt.Sprintf(format, args...))
}

func (r *recorder) Flush() {}

func TestLog_BelowLevel_IsDropped(t *testing.T) {
	r := &recorder{}
	SetLogger(r)
	SetLevel(Info)
	t.Cleanup(func() {
		SetLevel(Debug)
	})

	Log(0, Debug, "dropped %d", 1)
	Log(0, Warning, "kept %d", 2)
	Log(0, Error, "", "plain")
	assert.Equal(t, []string{"WARNING kept 2", "ERROR plain"}, r.lines)
}

func TestSeverity_String(t *testing.T) {
	assert.Equal(t, "INFO", Info.String())
	assert.Equal(t, "Severity(9)", Severity(9).String())
}
