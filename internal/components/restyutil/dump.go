// Package restyutil writes the http traffic of a resty client to disk for
// debugging, with credentials and tokens redacted.
package restyutil

import (
	"fmt"
	"os"
	"path/filepath"
	"scrapebridge/internal/components/telemetry"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const report_dump_write = "restyutil.dump"

type FilesystemOutput struct {
	directory string
	tel       telemetry.API
	counter   *uint64
	// started prefixes file names so outputs of separate clients don't collide.
	started string
}

// NewFilesystemOutput creates `dir` if it doesn't exist, files already in it are
// left alone.
func NewFilesystemOutput(dir string, tel telemetry.API) (FilesystemOutput, error) {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return FilesystemOutput{}, err
	}
	var counter uint64
	return FilesystemOutput{
		directory: dir,
		tel:       tel,
		counter:   &counter,
		started:   time.Now().Format("20060102T150405.000"),
	}, nil
}

func (o FilesystemOutput) Write(name string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, name), []byte(contents), 0600)
	if err != nil {
		o.tel.ReportWarning(report_dump_write, name, err)
	}
}

func (o FilesystemOutput) next(method string) string {
	id := atomic.AddUint64(o.counter, 1)
	return fmt.Sprintf("%s-%03d-%s.txt", o.started, id, strings.ToLower(method))
}

// Dump writes one file per response received by `client` into `out`.
func Dump(client *resty.Client, out FilesystemOutput) {
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		out.Write(out.next(res.Request.Method), formatHttpMessage(res))
		return nil
	})
}
