package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vlsergey/secan4go/classpool"
)

const samplePool = `
classes:
  - name: java/sql/PreparedStatement
  - name: java/sql/Connection
    interface: true
    methods:
      - name: prepareStatement
        descriptor: (Ljava/lang/String;)Ljava/sql/PreparedStatement;
        abstract: true
  - name: demo/Dao
    methods:
      - name: run
        descriptor: (Ljava/sql/Connection;Ljava/lang/String;)Ljava/sql/PreparedStatement;
        static: true
        code:
          - [aload, "0"]
          - [aload, "1"]
          - [invokeinterface, java/sql/Connection, prepareStatement, (Ljava/lang/String;)Ljava/sql/PreparedStatement;]
          - [areturn]
`

func writeSamplePool(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.yaml")
	if err := os.WriteFile(path, []byte(samplePool), 0o600); err != nil {
		t.Fatalf("writing pool file: %v", err)
	}
	return path
}

func TestLoadPoolFileAssemblesClasses(t *testing.T) {
	t.Parallel()

	pool, err := loadPoolFile(writeSamplePool(t))
	if err != nil {
		t.Fatalf("loadPoolFile: %v", err)
	}

	dao, err := pool.Get("demo/Dao")
	if err != nil {
		t.Fatalf("demo/Dao missing: %v", err)
	}
	m, err := dao.Method("run", "(Ljava/sql/Connection;Ljava/lang/String;)Ljava/sql/PreparedStatement;")
	if err != nil {
		t.Fatalf("run missing: %v", err)
	}
	if m.IsEmpty() {
		t.Fatalf("assembled method must have code")
	}
	if m.Code[0] != classpool.ALOAD_0 {
		t.Fatalf("first instruction = %s, want aload_0", classpool.Mnemonic(int(m.Code[0])))
	}

	conn, err := pool.Get("java/sql/Connection")
	if err != nil {
		t.Fatalf("connection missing: %v", err)
	}
	ps, err := conn.Method("prepareStatement", "(Ljava/lang/String;)Ljava/sql/PreparedStatement;")
	if err != nil {
		t.Fatalf("prepareStatement missing: %v", err)
	}
	if !ps.IsEmpty() {
		t.Fatalf("abstract method must be empty")
	}
}

func TestLoadPoolFileRejectsBadMnemonic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pool.yaml")
	bad := `
classes:
  - name: demo/Bad
    methods:
      - name: run
        descriptor: ()V
        static: true
        code:
          - [frobnicate]
`
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatalf("writing pool file: %v", err)
	}
	if _, err := loadPoolFile(path); err == nil {
		t.Fatalf("expected error for unknown mnemonic")
	}
}

func TestResolveEntry(t *testing.T) {
	t.Parallel()

	pool, err := loadPoolFile(writeSamplePool(t))
	if err != nil {
		t.Fatalf("loadPoolFile: %v", err)
	}

	m, err := resolveEntry(pool, "demo/Dao.run(Ljava/sql/Connection;Ljava/lang/String;)Ljava/sql/PreparedStatement;")
	if err != nil {
		t.Fatalf("resolveEntry: %v", err)
	}
	if m.Name != "run" {
		t.Fatalf("resolved wrong method %q", m.Name)
	}

	if _, err := resolveEntry(pool, "garbage"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := resolveEntry(pool, "no/Such.run()V"); err == nil {
		t.Fatalf("expected class resolution error")
	}
}
