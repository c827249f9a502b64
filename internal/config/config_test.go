package config

import (
	"os"
	"testing"
)

func TestDefaultConfigMatchesConfigurationTable(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Migration.Root != "/schema" {
		t.Errorf("Migration.Root = %q, want /schema", cfg.Migration.Root)
	}
	if cfg.Migration.InitFilename != "cqlmigrate.cql" {
		t.Errorf("Migration.InitFilename = %q, want cqlmigrate.cql", cfg.Migration.InitFilename)
	}
	if cfg.Migration.BootstrapFilename != "bootstrap.cql" {
		t.Errorf("Migration.BootstrapFilename = %q, want bootstrap.cql", cfg.Migration.BootstrapFilename)
	}
	if len(cfg.Database.ContactPoints) != 1 || cfg.Database.ContactPoints[0] != "localhost" {
		t.Errorf("Database.ContactPoints = %v, want [localhost]", cfg.Database.ContactPoints)
	}
	if cfg.Database.TimeoutMS != 30000 {
		t.Errorf("Database.TimeoutMS = %d, want 30000", cfg.Database.TimeoutMS)
	}
	if cfg.Lock.Name != "MIGRATION_LOCK" {
		t.Errorf("Lock.Name = %q, want MIGRATION_LOCK", cfg.Lock.Name)
	}
	if cfg.Status.Enabled {
		t.Error("Status.Enabled = true, want false")
	}
	if cfg.Status.Port != ":7070" {
		t.Errorf("Status.Port = %q, want :7070", cfg.Status.Port)
	}
	if cfg.Status.PollIntervalMS != 1000 {
		t.Errorf("Status.PollIntervalMS = %d, want 1000", cfg.Status.PollIntervalMS)
	}
	if cfg.Archive.Enabled {
		t.Error("Archive.Enabled = true, want false")
	}
	if cfg.Debug {
		t.Error("Debug = true, want false")
	}
}

func TestValidateRejectsMissingContactPoints(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.ContactPoints = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for no contact points")
	}
}

func TestValidateRejectsEmptyMigrationRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Migration.Root = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an empty migration root")
	}
}

func TestValidateRejectsArchiveEnabledWithoutBucket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Archive.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for archiving enabled without a bucket")
	}
}

func TestApplyEnvOverridesReadsContactPointsAndTimeout(t *testing.T) {
	t.Setenv("CONTACT_POINTS", "10.0.0.1 10.0.0.2")
	t.Setenv("MIGRATION_CLIENT_TIMEOUT_MS", "5000")
	t.Setenv("MIGRATION_LOCK_NAME", "CUSTOM_LOCK")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if len(cfg.Database.ContactPoints) != 2 || cfg.Database.ContactPoints[0] != "10.0.0.1" {
		t.Errorf("ContactPoints = %v, want [10.0.0.1 10.0.0.2]", cfg.Database.ContactPoints)
	}
	if cfg.Database.TimeoutMS != 5000 {
		t.Errorf("TimeoutMS = %d, want 5000", cfg.Database.TimeoutMS)
	}
	if cfg.Lock.Name != "CUSTOM_LOCK" {
		t.Errorf("Lock.Name = %q, want CUSTOM_LOCK", cfg.Lock.Name)
	}
}

func TestLoadFallsBackToDefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", os.DevNull+".missing")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Migration.Root != "/schema" {
		t.Errorf("Migration.Root = %q, want /schema", cfg.Migration.Root)
	}
}

func TestClientTimeoutConvertsMillisecondsToDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.TimeoutMS = 2500
	if got, want := cfg.ClientTimeout().Milliseconds(), int64(2500); got != want {
		t.Errorf("ClientTimeout() = %dms, want %dms", got, want)
	}
}
