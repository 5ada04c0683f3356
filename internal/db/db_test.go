package db

import "testing"

func TestDialector(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/db":                   "postgres",
		"postgresql://u:p@localhost/db":                      "postgres",
		"sqlite:subspace.db":                                 "sqlite",
		"file::memory:?cache=shared":                         "sqlite",
		"app:apppass@tcp(127.0.0.1:3306)/subspace?parseTime": "mysql",
	}
	for dsn, want := range cases {
		if got := Dialector(dsn).Name(); got != want {
			t.Errorf("Dialector(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestOpen_SQLiteMemory(t *testing.T) {
	type row struct {
		ID   uint64
		Name string
	}
	gdb, err := Open("file:dbtest?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := gdb.AutoMigrate(&row{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := gdb.Create(&row{Name: "a"}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var n int64
	gdb.Model(&row{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}
