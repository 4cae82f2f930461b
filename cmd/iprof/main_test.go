package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/gsoxley/OpenMDAO/internal/storageprovider"
	"github.com/gsoxley/OpenMDAO/internal/storageutil"
	"github.com/gsoxley/OpenMDAO/internal/testutil"
)

func TestSplitObjectURL(t *testing.T) {
	tests := []struct {
		name   string
		arg    string
		bucket string
		object string
		valid  bool
	}{
		{
			name:   "gcs object",
			arg:    "gs://profile-runs/run-1/iprof.0",
			bucket: "gs://profile-runs",
			object: "run-1/iprof.0",
			valid:  true,
		},
		{
			name:   "s3 object with options",
			arg:    "s3://profile-runs/run-1/iprof.3?region=us-west-2",
			bucket: "s3://profile-runs?region=us-west-2",
			object: "run-1/iprof.3",
			valid:  true,
		},
		{
			name:   "file object",
			arg:    "file://localhost/data/runs/iprof.1",
			bucket: "file://localhost/data/runs",
			object: "iprof.1",
			valid:  true,
		},
		{
			name:   "file object without host",
			arg:    "file:///data/runs/iprof.1",
			bucket: "file:///data/runs",
			object: "iprof.1",
			valid:  true,
		},
		{
			name:  "bucket without object",
			arg:   "gs://profile-runs",
			valid: false,
		},
		{
			name:  "file without directory",
			arg:   "file://localhost/iprof.0",
			valid: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bucket, object, err := splitObjectURL(test.arg)
			if !test.valid {
				if err == nil {
					t.Fatalf("expected an error, got %q and %q", bucket, object)
				}
				return
			}
			if err != nil {
				t.Fatalf("we should be able to split the URL: %v", err)
			}
			if diff := testutil.Diff(bucket, test.bucket); diff != "" {
				t.Fatalf("bucket mismatch: got - want +\n%s", diff)
			}
			if diff := testutil.Diff(object, test.object); diff != "" {
				t.Fatalf("object mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestRunDumpBlobURL(t *testing.T) {
	ctx := context.Background()
	temporaryDirectory, err := os.MkdirTemp(os.TempDir(), "iprof-cli-*")
	if err != nil {
		t.Fatalf("couldn't create a temporary directory: %s", err.Error())
	}
	defer os.RemoveAll(temporaryDirectory)

	bucket, err := storageprovider.OpenBucket(ctx, "file://localhost/"+temporaryDirectory)
	if err != nil {
		t.Fatalf("we should be able to open a local bucket: %v", err)
	}
	trace := "$total 1 2.000000\n$total@Solver#0.Solve 3 1.250000\n"
	err = storageutil.CompressedCopy(ctx, bucket, "run-1/iprof.0", strings.NewReader(trace))
	if err != nil {
		t.Fatalf("we should be able to store the trace: %v", err)
	}
	if err := bucket.Close(); err != nil {
		t.Fatalf("we should be able to close the bucket: %v", err)
	}

	flags := flags{}
	flags.Dump.Trace = "file://localhost/" + temporaryDirectory + "/run-1/iprof.0"

	var out bytes.Buffer
	if err := runDump(ctx, &flags, &out); err != nil {
		t.Fatalf("we should be able to dump the object: %v", err)
	}

	want := "$total 1 2\n$total@Solver#0.Solve 3 1.25\n"
	if diff := testutil.Diff(out.String(), want); diff != "" {
		t.Fatalf("dump mismatch: got - want +\n%s", diff)
	}
}

func TestRunTotals(t *testing.T) {
	temporaryDirectory, err := os.MkdirTemp(os.TempDir(), "iprof-cli-*")
	if err != nil {
		t.Fatalf("couldn't create a temporary directory: %s", err.Error())
	}
	defer os.RemoveAll(temporaryDirectory)

	traces := map[string]string{
		"iprof.0": "$total 1 2.000000\n$total@A 1 1.500000\n",
		"iprof.1": "$total 1 1.000000\n$total@A 1 0.600000\n",
	}
	args := make([]string, 0, len(traces))
	for name, content := range traces {
		path := filepath.Join(temporaryDirectory, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("we should be able to write the trace: %v", err)
		}
		args = append(args, path)
	}
	sort.Strings(args)

	outfile := filepath.Join(temporaryDirectory, "totals.txt")
	flags := flags{}
	flags.Totals.Traces = args
	flags.Totals.Outfile = outfile

	if err := runTotals(context.Background(), &flags); err != nil {
		t.Fatalf("we should be able to render the totals: %v", err)
	}

	table, err := os.ReadFile(outfile)
	if err != nil {
		t.Fatalf("we should be able to read the table back: %v", err)
	}
	want := "\nTotal     Total           Function\n" +
		"Calls     Time (s)    %   Name\n" +
		"     1    0.600000  20.00 A.1\n" +
		"     1    1.500000  50.00 A.0\n" +
		"     2    3.000000 100.00 $total\n"
	if diff := testutil.Diff(string(table), want); diff != "" {
		t.Fatalf("table mismatch: got - want +\n%s", diff)
	}
}

func TestRunView(t *testing.T) {
	temporaryDirectory, err := os.MkdirTemp(os.TempDir(), "iprof-cli-*")
	if err != nil {
		t.Fatalf("couldn't create a temporary directory: %s", err.Error())
	}
	defer os.RemoveAll(temporaryDirectory)

	path := filepath.Join(temporaryDirectory, "iprof.0")
	trace := "$total 1 1.000000\n$total@Solver#0.Solve 2 0.400000\n"
	if err := os.WriteFile(path, []byte(trace), 0o644); err != nil {
		t.Fatalf("we should be able to write the trace: %v", err)
	}

	outfile := filepath.Join(temporaryDirectory, "profile_icicle.html")
	flags := flags{}
	flags.View.Traces = []string{path}
	flags.View.Outfile = outfile
	flags.View.Title = "Newton solve"

	if err := runView(context.Background(), &flags); err != nil {
		t.Fatalf("we should be able to render the view: %v", err)
	}

	page, err := os.ReadFile(outfile)
	if err != nil {
		t.Fatalf("we should be able to read the page back: %v", err)
	}
	html := string(page)
	if !strings.Contains(html, "<title>Newton solve</title>") {
		t.Fatal("the page should carry the requested title")
	}
	if !strings.Contains(html, `"name":"$total@Solver#0.Solve"`) {
		t.Fatal("the page should embed the call graph")
	}
	if !strings.Contains(html, `"$total@$parent"`) {
		t.Fatal("the page should embed the synthesized exclusive self leaf")
	}
}
