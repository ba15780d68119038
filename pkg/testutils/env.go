package testutils

import (
	"os"
	"testing"
)

const TEST_POSTGRESQL_DSN_ENV = "SCHOLARLY_TEST_POSTGRESQL_DSN"

// PostgresDSNOrSkip 返回集成测试使用的 DSN，未配置时跳过测试
func PostgresDSNOrSkip(t testing.TB) string {
	dsn := os.Getenv(TEST_POSTGRESQL_DSN_ENV)
	if dsn == "" {
		t.Skipf("%s not set, skipping postgres integration test", TEST_POSTGRESQL_DSN_ENV)
	}
	return dsn
}
