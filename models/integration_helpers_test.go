package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/models"
	"bitbucket.org/agrindo/pks_backend/utils"
)

var integrationOnce sync.Once

// setupIntegration starts a throwaway mysql (and redis) container, connects
// the shared config singletons, and runs migrations. Containers are shared by
// all integration tests in the package; they die with the test process.
func setupIntegration(t *testing.T) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	integrationOnce.Do(func() {
		redisName, redisPort := startRedisContainer(t)
		mysqlName, mysqlPort := startMySQLContainer(t)
		// containers are removed when the last test finishes
		t.Cleanup(func() {
			_ = dockerRmForce(redisName)
			_ = dockerRmForce(mysqlName)
		})

		os.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
		os.Setenv("DB_USER", "root")
		os.Setenv("DB_PASSWORD", "testpw")
		os.Setenv("DB_HOST", "127.0.0.1")
		os.Setenv("DB_PORT", mysqlPort)
		os.Setenv("DB_NAME", "pks_test")

		config.ConnectDatabaseWithRetry()
		config.ConnectRedisWithRetry()
		models.MigrateTable()
	})
}

// newCompanyContext registers a fresh company plus operator and returns a
// context scoped to them, the way a logged-in request would arrive.
func newCompanyContext(t *testing.T, companyName string) (context.Context, *models.Company) {
	t.Helper()
	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test Operator")

	company, err := models.CreateCompany(ctx, &models.NewCompany{Name: companyName})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	return utils.SetCompanyIdInContext(ctx, company.ID), company
}

// newTestMaterial creates a category, unit, and material in one call.
func newTestMaterial(t *testing.T, ctx context.Context, code, name string) *models.Material {
	t.Helper()
	category, err := models.CreateMaterialCategory(ctx, &models.NewMaterialCategory{Name: "Cat " + code})
	if err != nil {
		t.Fatalf("CreateMaterialCategory: %v", err)
	}
	unit, err := models.CreateUnitOfMeasure(ctx, &models.NewUnitOfMeasure{Name: "Kg " + code, Abbreviation: "kg"})
	if err != nil {
		t.Fatalf("CreateUnitOfMeasure: %v", err)
	}
	material, err := models.CreateMaterial(ctx, &models.NewMaterial{
		Code:       code,
		Name:       name,
		CategoryId: category.ID,
		UnitId:     unit.ID,
	})
	if err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}
	return material
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pks-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pks-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=pks_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
