package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/graphstack/pkg/store"
	"github.com/papercomputeco/graphstack/pkg/store/entstore"
	"github.com/papercomputeco/graphstack/pkg/store/postgres"
	"github.com/papercomputeco/graphstack/pkg/store/storetest"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("GRAPHSTACK_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("GRAPHSTACK_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	storetest.DescribeStore(func(ctx context.Context) store.Store {
		driver, err := postgres.NewDriver(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		// Clean all tables before each test for isolation.
		Expect(driver.Truncate(ctx, entstore.Tables...)).To(Succeed())
		return driver
	})
})
