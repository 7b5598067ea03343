package gateway

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hydronet-io/hydrogate/internal/codec"
	"github.com/hydronet-io/hydrogate/internal/protocol/sl651"
	"github.com/hydronet-io/hydrogate/pkg/bus"
	"github.com/hydronet-io/hydrogate/pkg/link"
	"github.com/hydronet-io/hydrogate/pkg/store"
)

const (
	testRemoteCode = "1234567890"
	testConfigJSON = `{"funcs":{"32":{"name":"hourly report","direction":"up","elements":[` +
		`{"id":"water_level","guide":"39","encoding":"BCD","length":3,"decimals":2,"unit":"m"}]}}}`
)

type harness struct {
	gw  *Gateway
	svc *Service
	st  *store.Store
	bus *bus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "gateway.db")},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	b := bus.New()
	gw := New(Config{
		CenterCode: "01",
		Workers:    2,
		Link: link.Config{
			ReconnectBase:    20 * time.Millisecond,
			ReconnectCeiling: 200 * time.Millisecond,
		},
	}, st, b)
	if err := gw.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(gw.Stop)

	return &harness{gw: gw, svc: NewService(st, b), st: st, bus: b}
}

// startServerLink creates an enabled server link through the service and
// waits for the gateway to bring it up on an ephemeral port.
func (h *harness) startServerLink(t *testing.T) (linkID, addr string) {
	t.Helper()
	ctx := context.Background()

	linkID, err := h.svc.CreateLink(ctx, &store.Link{
		Name: "station uplink",
		Mode: string(link.ModeServer),
		IP:   "127.0.0.1",
		Port: 0,
	})
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return h.gw.Manager().IsRunning(linkID) })
	addr, err = h.gw.Manager().BoundAddr(linkID)
	if err != nil {
		t.Fatal(err)
	}
	return linkID, addr
}

func (h *harness) registerDevice(t *testing.T, linkID string) string {
	t.Helper()
	id, err := h.svc.CreateDevice(context.Background(), &store.Device{
		Code:   testRemoteCode,
		LinkID: linkID,
		Name:   "river gauge",
		Config: testConfigJSON,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// uplinkFrame assembles a device-to-center wire frame.
func uplinkFrame(t *testing.T, funcCode string, body []byte, etx byte) []byte {
	t.Helper()

	remote, err := codec.BCDWrite(testRemoteCode)
	if err != nil {
		t.Fatal(err)
	}
	password, err := codec.BCDWrite("0000")
	if err != nil {
		t.Fatal(err)
	}
	fc, err := codec.HexDecode(funcCode)
	if err != nil {
		t.Fatal(err)
	}

	frame := []byte{sl651.PreambleByte, sl651.PreambleByte, 0x01}
	frame = append(frame, remote...)
	frame = append(frame, password...)
	frame = append(frame, fc...)
	frame = codec.AppendUint16(frame, uint16(len(body)&0x0FFF))
	frame = append(frame, sl651.STXSingle)
	frame = append(frame, body...)
	frame = append(frame, etx)
	crc := codec.CRC16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

// uplinkBody builds serial + observation time + trailing element bytes.
func uplinkBody(serial uint16, elements ...byte) []byte {
	body := codec.AppendUint16(nil, serial)
	body = append(body, 0x22, 0x12, 0x29, 0x10, 0x22, 0x15) // 2022-12-29 10:22:15
	return append(body, elements...)
}

// readFrame collects bytes from the connection until one complete frame
// is framed out, or fails at the read deadline.
func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()

	framer := sl651.NewFramer(sl651.MaxBufferSize)
	buf := make([]byte, 1024)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("reading ack: %v", err)
		}
		frames, err := framer.Push(buf[:n])
		if err != nil {
			t.Fatal(err)
		}
		if len(frames) > 0 {
			return frames[0]
		}
	}
}

func TestUplinkPersistAndAck(t *testing.T) {
	h := newHarness(t)
	linkID, addr := h.startServerLink(t)
	devID := h.registerDevice(t, linkID)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Water level 12.50 behind guide 0x39.
	body := uplinkBody(0x0001, 0x39, 0x00, 0x12, 0x50)
	if _, err := conn.Write(uplinkFrame(t, "32", body, sl651.ETXReply)); err != nil {
		t.Fatal(err)
	}

	raw := readFrame(t, conn)
	ack, err := sl651.NewParser(sl651.ParserConfig{}).Parse(raw)
	if err != nil {
		t.Fatalf("ack did not parse: %v", err)
	}
	if ack.Direction != sl651.DirectionDown || ack.FuncCode != "32" {
		t.Errorf("ack direction %v funcCode %s", ack.Direction, ack.FuncCode)
	}
	if !ack.CRCValid {
		t.Error("ack CRC invalid")
	}

	waitFor(t, func() bool {
		records, err := h.st.ListRecords(context.Background(), store.RecordFilter{DeviceID: devID})
		return err == nil && len(records) == 1
	})
	records, _ := h.st.ListRecords(context.Background(), store.RecordFilter{DeviceID: devID})
	rec := records[0]
	if rec.LinkID != linkID || rec.Protocol != sl651.Protocol {
		t.Errorf("record = %+v", rec)
	}
	if !strings.Contains(rec.Data, `"12.50"`) {
		t.Errorf("decoded element missing from record data: %s", rec.Data)
	}
	if rec.ReportTime == nil || rec.ReportTime.UTC().Hour() != 2 {
		t.Errorf("report time = %v", rec.ReportTime)
	}
}

func TestUnregisteredDeviceIgnored(t *testing.T) {
	h := newHarness(t)
	_, addr := h.startServerLink(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write(uplinkFrame(t, "32", uplinkBody(0x0001), sl651.ETXReply)); err != nil {
		t.Fatal(err)
	}

	// No ack comes back for an unknown remote code.
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 64)
	if n, err := conn.Read(buf); err == nil {
		t.Fatalf("unexpected %d reply bytes for unregistered device", n)
	}

	records, err := h.st.ListRecords(context.Background(), store.RecordFilter{})
	if err != nil || len(records) != 0 {
		t.Fatalf("records = %d, err %v", len(records), err)
	}
}

func TestLinkKeepAck(t *testing.T) {
	h := newHarness(t)
	linkID, addr := h.startServerLink(t)
	h.registerDevice(t, linkID)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write(uplinkFrame(t, "2F", uplinkBody(0x0002), sl651.ETXReply)); err != nil {
		t.Fatal(err)
	}

	ack, err := sl651.NewParser(sl651.ParserConfig{}).Parse(readFrame(t, conn))
	if err != nil {
		t.Fatal(err)
	}
	if ack.FuncCode != sl651.FuncLinkKeep || len(ack.Body) != 0 {
		t.Errorf("heartbeat ack funcCode %s body %d bytes", ack.FuncCode, len(ack.Body))
	}
}

func TestMultiPacketPersistsOneRecord(t *testing.T) {
	h := newHarness(t)
	linkID, addr := h.startServerLink(t)
	devID := h.registerDevice(t, linkID)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	full := uplinkBody(0x0003, 0x39, 0x00, 0x12, 0x50)
	split := 6

	frag := func(seq int, body []byte) []byte {
		remote, _ := codec.BCDWrite(testRemoteCode)
		password, _ := codec.BCDWrite("0000")
		withIdx := append([]byte{0x00, 0x20, byte(seq)}, body...)

		frame := []byte{sl651.PreambleByte, sl651.PreambleByte, 0x01}
		frame = append(frame, remote...)
		frame = append(frame, password...)
		frame = append(frame, 0x32)
		frame = codec.AppendUint16(frame, uint16(len(withIdx)&0x0FFF))
		frame = append(frame, sl651.STXMulti)
		frame = append(frame, withIdx...)
		frame = append(frame, sl651.ETXNoReply)
		crc := codec.CRC16(frame)
		return append(frame, byte(crc), byte(crc>>8))
	}

	if _, err := conn.Write(frag(1, full[:split])); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(frag(2, full[split:])); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		records, err := h.st.ListRecords(context.Background(), store.RecordFilter{DeviceID: devID})
		return err == nil && len(records) == 1
	})
	records, _ := h.st.ListRecords(context.Background(), store.RecordFilter{DeviceID: devID})
	if !strings.Contains(records[0].Data, `"12.50"`) {
		t.Errorf("merged record missing element: %s", records[0].Data)
	}
}

func TestRegistrationChangeDropsServerPeers(t *testing.T) {
	h := newHarness(t)
	linkID, addr := h.startServerLink(t)
	devID := h.registerDevice(t, linkID)

	var conns []net.Conn
	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()
		conns = append(conns, conn)
	}
	waitFor(t, func() bool {
		status, err := h.gw.Manager().GetStatus(linkID)
		return err == nil && status.ClientCount == 3
	})

	dev, err := h.st.GetDevice(context.Background(), devID)
	if err != nil {
		t.Fatal(err)
	}
	dev.Code = "0987654321"
	if err := h.svc.UpdateDevice(context.Background(), dev); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		status, err := h.gw.Manager().GetStatus(linkID)
		return err == nil && status.ClientCount == 0
	})
	status, err := h.gw.Manager().GetStatus(linkID)
	if err != nil {
		t.Fatal(err)
	}
	if status.ConnStatus != "listening" {
		t.Errorf("link left listening state: %s", status.ConnStatus)
	}

	for _, conn := range conns {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, err := conn.Read(make([]byte, 1)); err == nil {
			t.Error("peer connection survived registration change")
		}
	}
}

func TestConfigEditKeepsPeers(t *testing.T) {
	h := newHarness(t)
	linkID, addr := h.startServerLink(t)
	devID := h.registerDevice(t, linkID)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	waitFor(t, func() bool {
		status, err := h.gw.Manager().GetStatus(linkID)
		return err == nil && status.ClientCount == 1
	})

	dev, err := h.st.GetDevice(context.Background(), devID)
	if err != nil {
		t.Fatal(err)
	}
	dev.Name = "renamed gauge"
	if err := h.svc.UpdateDevice(context.Background(), dev); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	status, err := h.gw.Manager().GetStatus(linkID)
	if err != nil {
		t.Fatal(err)
	}
	if status.ClientCount != 1 {
		t.Errorf("peer dropped on a non-registration edit, clients = %d", status.ClientCount)
	}
}

func TestLinkDeleteStopsRuntime(t *testing.T) {
	h := newHarness(t)
	linkID, _ := h.startServerLink(t)

	if err := h.svc.DeleteLink(context.Background(), linkID); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return !h.gw.Manager().IsRunning(linkID) })
}

func TestLinkDisableStopsRuntime(t *testing.T) {
	h := newHarness(t)
	linkID, _ := h.startServerLink(t)

	l, err := h.st.GetLink(context.Background(), linkID)
	if err != nil {
		t.Fatal(err)
	}
	l.Enabled = false
	if err := h.svc.UpdateLink(context.Background(), l); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return !h.gw.Manager().IsRunning(linkID) })
}

func TestCommandRoutedToPeer(t *testing.T) {
	h := newHarness(t)
	linkID, addr := h.startServerLink(t)
	devID := h.registerDevice(t, linkID)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// The device must speak first so the gateway learns which peer
	// carries this remote code.
	if _, err := conn.Write(uplinkFrame(t, "32", uplinkBody(0x0004, 0x39, 0x00, 0x12, 0x50), sl651.ETXNoReply)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		records, err := h.st.ListRecords(context.Background(), store.RecordFilter{DeviceID: devID})
		return err == nil && len(records) == 1
	})

	if err := h.gw.SendCommand(context.Background(), CommandInput{
		DeviceID: devID,
		FuncCode: "32",
		Elements: []sl651.CommandElement{{ID: "water_level", Value: "3.50"}},
	}); err != nil {
		t.Fatal(err)
	}

	cmd, err := sl651.NewParser(sl651.ParserConfig{}).Parse(readFrame(t, conn))
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Direction != sl651.DirectionDown || cmd.FuncCode != "32" || !cmd.CRCValid {
		t.Errorf("command frame = %+v", cmd)
	}
	if !cmd.ReplyRequired() {
		t.Error("command frame does not request a reply")
	}
}

func TestDownlinkFrameLearnsNoRoute(t *testing.T) {
	h := newHarness(t)
	linkID, addr := h.startServerLink(t)
	devID := h.registerDevice(t, linkID)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// A center-to-device frame echoed back on the link must not claim
	// the peer as the station's address.
	down := uplinkFrame(t, "32", uplinkBody(0x0005, 0x39, 0x00, 0x12, 0x50), sl651.ETXNoReply)
	lenField := codec.Uint16(down[11:13]) | 0x8000
	down[11] = byte(lenField >> 8)
	down[12] = byte(lenField)
	crc := codec.CRC16(down[:len(down)-2])
	down[len(down)-2] = byte(crc)
	down[len(down)-1] = byte(crc >> 8)

	if _, err := conn.Write(down); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		records, err := h.st.ListRecords(context.Background(), store.RecordFilter{DeviceID: devID})
		return err == nil && len(records) == 1
	})

	h.gw.mu.Lock()
	_, learned := h.gw.routes[cacheKey(linkID, testRemoteCode)]
	h.gw.mu.Unlock()
	if learned {
		t.Fatal("route registered from a downlink frame")
	}
}

func TestCommandOfflineDevice(t *testing.T) {
	h := newHarness(t)
	linkID, _ := h.startServerLink(t)
	devID := h.registerDevice(t, linkID)

	err := h.gw.SendCommand(context.Background(), CommandInput{
		DeviceID: devID,
		FuncCode: "32",
	})
	if !errors.Is(err, ErrDeviceOffline) {
		t.Fatalf("got %v, want ErrDeviceOffline", err)
	}
}

func TestFailedMutationPublishesNoEvents(t *testing.T) {
	h := newHarness(t)
	linkID, _ := h.startServerLink(t)
	ctx := context.Background()

	var events []bus.Event
	for _, kind := range []bus.EventKind{
		bus.EventLinkCreated, bus.EventLinkUpdated, bus.EventLinkDeleted, bus.EventDeviceUpdated,
	} {
		h.bus.Subscribe(kind, func(ev bus.Event) { events = append(events, ev) })
	}

	l, err := h.st.GetLink(ctx, linkID)
	if err != nil {
		t.Fatal(err)
	}

	// Same endpoint again: the create fails before commit.
	if _, err := h.svc.CreateLink(ctx, &store.Link{
		Name: "dup", Mode: l.Mode, IP: l.IP, Port: l.Port,
	}); !errors.Is(err, store.ErrDuplicateEndpoint) {
		t.Fatalf("got %v, want ErrDuplicateEndpoint", err)
	}
	if err := h.svc.DeleteLink(ctx, "no-such-link"); !errors.Is(err, store.ErrLinkNotFound) {
		t.Fatalf("got %v, want ErrLinkNotFound", err)
	}

	if len(events) != 0 {
		t.Fatalf("failed mutations published %d events: %+v", len(events), events)
	}
}

func TestEventObservesCommittedState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	visible := make(chan bool, 1)
	h.bus.Subscribe(bus.EventLinkCreated, func(ev bus.Event) {
		_, err := h.st.GetLink(ctx, ev.LinkID)
		visible <- err == nil
	})

	if _, err := h.svc.CreateLink(ctx, &store.Link{
		Name: "late link", Mode: string(link.ModeServer), IP: "127.0.0.1", Port: 16060,
	}); err != nil {
		t.Fatal(err)
	}
	if !<-visible {
		t.Fatal("subscriber ran before the link was committed")
	}
}
