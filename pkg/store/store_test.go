package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	// A file-backed database so transactions and plain queries run on
	// separate connections, as they do in production.
	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "gateway.db")},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testLink() *Link {
	return &Link{
		Name: "upstream station",
		Mode: "TCP Server",
		IP:   "0.0.0.0",
		Port: 6060,
	}
}

func TestLinkCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateLink(ctx, testLink())
	if err != nil {
		t.Fatal(err)
	}

	link, err := s.GetLink(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if link.Protocol != "SL651" {
		t.Errorf("protocol default = %q", link.Protocol)
	}

	// Same endpoint rejected.
	if _, err := s.CreateLink(ctx, testLink()); !errors.Is(err, ErrDuplicateEndpoint) {
		t.Errorf("duplicate endpoint: got %v", err)
	}

	// Same address, different mode is fine.
	client := testLink()
	client.Mode = "TCP Client"
	if _, err := s.CreateLink(ctx, client); err != nil {
		t.Fatal(err)
	}

	link.Name = "renamed"
	link.Port = 6061
	link.Enabled = false
	if err := s.UpdateLink(ctx, link); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetLink(ctx, id)
	if got.Name != "renamed" || got.Port != 6061 || got.Enabled {
		t.Errorf("after update: %+v", got)
	}

	links, err := s.ListLinks(ctx)
	if err != nil || len(links) != 2 {
		t.Fatalf("list = %d links, err %v", len(links), err)
	}
	enabled, err := s.ListEnabledLinks(ctx)
	if err != nil || len(enabled) != 1 {
		t.Fatalf("enabled = %d links, err %v", len(enabled), err)
	}

	if err := s.DeleteLink(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetLink(ctx, id); !errors.Is(err, ErrLinkNotFound) {
		t.Errorf("after delete: got %v", err)
	}
	if err := s.DeleteLink(ctx, id); !errors.Is(err, ErrLinkNotFound) {
		t.Errorf("second delete: got %v", err)
	}
}

func TestDeleteLinkInUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	linkID, err := s.CreateLink(ctx, testLink())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateDevice(ctx, &Device{Code: "1234567890", LinkID: linkID}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteLink(ctx, linkID); !errors.Is(err, ErrLinkInUse) {
		t.Fatalf("got %v, want ErrLinkInUse", err)
	}
}

func TestDeviceCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	linkID, err := s.CreateLink(ctx, testLink())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.CreateDevice(ctx, &Device{Code: "1234567890", LinkID: "missing"}); !errors.Is(err, ErrLinkNotFound) {
		t.Errorf("device on unknown link: got %v", err)
	}

	devID, err := s.CreateDevice(ctx, &Device{
		Code:   "1234567890",
		LinkID: linkID,
		Name:   "river gauge 1",
		Config: `{"elements":{}}`,
	})
	if err != nil {
		t.Fatal(err)
	}

	dev, err := s.GetDeviceByLinkAndCode(ctx, linkID, "1234567890")
	if err != nil {
		t.Fatal(err)
	}
	if dev.ID != devID || dev.Timezone != "+08:00" {
		t.Errorf("device = %+v", dev)
	}

	if _, err := s.CreateDevice(ctx, &Device{Code: "1234567890", LinkID: linkID}); !errors.Is(err, ErrDuplicateDevice) {
		t.Errorf("duplicate code: got %v", err)
	}

	// Same code on another link is allowed.
	other := testLink()
	other.Port = 7070
	otherID, err := s.CreateLink(ctx, other)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateDevice(ctx, &Device{Code: "1234567890", LinkID: otherID}); err != nil {
		t.Fatal(err)
	}

	dev.Name = "renamed gauge"
	dev.Code = "0987654321"
	if err := s.UpdateDevice(ctx, dev); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetDeviceByLinkAndCode(ctx, linkID, "1234567890"); !errors.Is(err, ErrDeviceNotFound) {
		t.Error("old code still resolves after update")
	}

	devices, err := s.ListDevices(ctx, linkID)
	if err != nil || len(devices) != 1 {
		t.Fatalf("list by link = %d, err %v", len(devices), err)
	}
	all, err := s.ListDevices(ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("list all = %d, err %v", len(all), err)
	}

	if err := s.DeleteDevice(ctx, devID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDevice(ctx, devID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second delete: got %v", err)
	}
}

func TestRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reportTime := time.Date(2022, 12, 29, 10, 22, 15, 0, time.FixedZone("CST", 8*3600))

	var lastID uint
	for i := 0; i < 3; i++ {
		rt := reportTime.Add(time.Duration(i) * time.Minute)
		id, err := s.InsertRecord(ctx, &TelemetryRecord{
			DeviceID:   "dev-1",
			LinkID:     "link-1",
			Protocol:   "SL651",
			Data:       `{"funcCode":"32"}`,
			ReportTime: &rt,
		})
		if err != nil {
			t.Fatal(err)
		}
		if id <= lastID {
			t.Fatalf("ids not increasing: %d after %d", id, lastID)
		}
		lastID = id
	}

	rec, err := s.GetRecord(ctx, lastID)
	if err != nil || rec.DeviceID != "dev-1" {
		t.Fatalf("get record: %+v, err %v", rec, err)
	}

	records, err := s.ListRecords(ctx, RecordFilter{DeviceID: "dev-1"})
	if err != nil || len(records) != 3 {
		t.Fatalf("list = %d, err %v", len(records), err)
	}
	if records[0].ID != lastID {
		t.Error("records not newest-first")
	}

	scoped, err := s.ListRecords(ctx, RecordFilter{
		DeviceID: "dev-1",
		Since:    reportTime.Add(30 * time.Second),
	})
	if err != nil || len(scoped) != 2 {
		t.Fatalf("since filter = %d, err %v", len(scoped), err)
	}

	count, err := s.CountRecords(ctx, "dev-1")
	if err != nil || count != 3 {
		t.Fatalf("count = %d, err %v", count, err)
	}
}
