package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wablast/pkg/logx"
)

func TestFileStoreAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sends.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	recs := []SendRecord{
		{BatchID: "b1", Phone: "+1555", Status: "succeeded", Attempts: 1, TookMS: 42},
		{BatchID: "b1", Phone: "+1bad", Status: "exhausted", Attempts: 3, Error: "invalid destination"},
	}
	for _, r := range recs {
		if err := st.AppendSend(context.Background(), r); err != nil {
			t.Fatalf("AppendSend: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []sendLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l sendLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		lines = append(lines, l)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Phone != "+1555" || lines[0].Status != "succeeded" || lines[0].TookMS != 42 {
		t.Fatalf("line 0 = %+v", lines[0])
	}
	if lines[1].Error != "invalid destination" || lines[1].Attempts != 3 {
		t.Fatalf("line 1 = %+v", lines[1])
	}
	// the store stamps records that carry no time
	if _, err := time.Parse(time.RFC3339Nano, lines[0].At); err != nil {
		t.Fatalf("at = %q: %v", lines[0].At, err)
	}
}

func TestFileStoreAppendAfterClose(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sends.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}
	if err := st.AppendSend(context.Background(), SendRecord{Phone: "+1"}); err != ErrDisabled {
		t.Fatalf("got %v, want ErrDisabled", err)
	}
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()

	if st, err := Open(Config{}, logx.Nop()); err != nil || st != nil {
		t.Fatalf("empty driver: %v, %v", st, err)
	}
	if st, err := Open(Config{Driver: "none"}, logx.Nop()); err != nil || st != nil {
		t.Fatalf("none driver: %v, %v", st, err)
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver without path accepted")
	}
}
