package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/termfleet/termfleet-core/internal/infrastructure/config"
	"github.com/termfleet/termfleet-core/internal/terminal"
)

func simDevice() config.DeviceConfig {
	return config.DeviceConfig{ID: 1, Name: "Sim Door", IP: "127.0.0.1", Port: 4370}
}

func connectedDriver(t *testing.T) *driver {
	t.Helper()
	d, err := New(simDevice())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return d.(*driver)
}

func TestDriverRegistered(t *testing.T) {
	d, err := terminal.NewDriver("sim", simDevice())
	if err != nil {
		t.Fatalf(`NewDriver("sim") error = %v`, err)
	}
	if d == nil {
		t.Fatal("NewDriver returned nil driver")
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	d, _ := New(simDevice())

	if _, err := d.Users(); !errors.Is(err, terminal.ErrNotConnected) {
		t.Errorf("Users() error = %v, want ErrNotConnected", err)
	}
	if err := d.Enable(); !errors.Is(err, terminal.ErrNotConnected) {
		t.Errorf("Enable() error = %v, want ErrNotConnected", err)
	}
	if d.Ping(context.Background()) {
		t.Error("Ping() = true while disconnected")
	}
}

func TestUserLifecycle(t *testing.T) {
	d := connectedDriver(t)

	if err := d.SetUser(terminal.User{UID: 7, UserID: "2002", Name: "Grace"}); err != nil {
		t.Fatalf("SetUser error = %v", err)
	}
	users, err := d.Users()
	if err != nil {
		t.Fatalf("Users error = %v", err)
	}
	if len(users) != 2 { // seeded user plus the new one
		t.Fatalf("users = %d, want 2", len(users))
	}

	if err := d.DeleteUser("2002"); err != nil {
		t.Fatalf("DeleteUser error = %v", err)
	}
	if err := d.DeleteUser("2002"); !errors.Is(err, terminal.ErrUserNotFound) {
		t.Errorf("second DeleteUser error = %v, want ErrUserNotFound", err)
	}
}

func TestEnrollCreatesTemplate(t *testing.T) {
	d := connectedDriver(t)

	if err := d.EnrollUser("1001", 3); err != nil {
		t.Fatalf("EnrollUser error = %v", err)
	}
	tpl, err := d.Template("1001", 3)
	if err != nil {
		t.Fatalf("Template error = %v", err)
	}
	if !tpl.Valid || len(tpl.Data) == 0 {
		t.Errorf("template = %+v, want valid with data", tpl)
	}

	if err := d.DeleteTemplate("1001", 3); err != nil {
		t.Fatalf("DeleteTemplate error = %v", err)
	}
	if _, err := d.Template("1001", 3); !errors.Is(err, terminal.ErrUserNotFound) {
		t.Errorf("Template after delete error = %v, want ErrUserNotFound", err)
	}
}

func TestEnrollUnknownUser(t *testing.T) {
	d := connectedDriver(t)
	if err := d.EnrollUser("ghost", 0); !errors.Is(err, terminal.ErrUserNotFound) {
		t.Errorf("EnrollUser(ghost) error = %v, want ErrUserNotFound", err)
	}
}

func TestPunchDeliversDecodableLivePacket(t *testing.T) {
	d := connectedDriver(t)

	transport := d.RawTransport()
	if err := transport.SetReadTimeout(time.Second); err != nil {
		t.Fatalf("SetReadTimeout error = %v", err)
	}

	d.Punch("1001")

	buf := make([]byte, 1032)
	n, err := transport.Read(buf)
	if err != nil {
		t.Fatalf("Read error = %v", err)
	}
	if n < 18 {
		t.Fatalf("packet = %d bytes, want header plus a record", n)
	}

	// The packet must round-trip through the real frame decoder.
	// Command code sits in the first header word.
	if got := uint16(buf[0]) | uint16(buf[1])<<8; got != 500 {
		t.Errorf("command = %d, want 500", got)
	}

	records, err := d.Attendance()
	if err != nil {
		t.Fatalf("Attendance error = %v", err)
	}
	if len(records) != 1 || records[0].UserID != "1001" {
		t.Errorf("attendance = %+v, want one punch for 1001", records)
	}
}

func TestIdleReadTimesOut(t *testing.T) {
	d := connectedDriver(t)

	transport := d.RawTransport()
	transport.SetReadTimeout(20 * time.Millisecond)

	buf := make([]byte, 64)
	_, err := transport.Read(buf)
	if err == nil {
		t.Fatal("Read on idle transport returned without error")
	}
	var timeout interface{ Timeout() bool }
	if !errors.As(err, &timeout) || !timeout.Timeout() {
		t.Errorf("idle read error = %v, want a timeout", err)
	}
}

func TestInfoCounts(t *testing.T) {
	d := connectedDriver(t)

	info, err := d.Info()
	if err != nil {
		t.Fatalf("Info error = %v", err)
	}
	if info.Name != "Sim Door" || info.UserCount != 1 {
		t.Errorf("info = %+v, want Sim Door with 1 user", info)
	}
}
