package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/paperflow/arxetl/internal/table"
	"github.com/paperflow/arxetl/internal/table/tabletest"
)

func TestPostgres(t *testing.T) {
	url := os.Getenv("ARX_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("ARX_TEST_POSTGRES_URL not set")
	}

	tabletest.Run(t, func(t *testing.T) table.Table {
		ctx := context.Background()
		name := fmt.Sprintf("arx_test_%d", time.Now().UnixNano())
		db, err := Open(ctx, url, name)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		t.Cleanup(func() {
			if err := db.Drop(ctx); err != nil {
				t.Errorf("Drop() error = %v", err)
			}
			db.Close()
		})
		return db
	})
}
