package tcp

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/bleota/pkg/ota"
	"github.com/rescp17/bleota/pkg/storage"
)

// startTestHost runs a host for a fresh session over an ephemeral port and
// returns the session, the slot path, and the address to dial.
func startTestHost(t *testing.T, cfg Config) (*ota.Session, string, string) {
	t.Helper()

	slot := filepath.Join(t.TempDir(), "slot0.bin")
	session := ota.NewSession(storage.NewSlotWriter(slot, 1<<20, 0))

	cfg.Addr = "127.0.0.1:0"
	host := New(cfg, session)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = host.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool { return host.Addr() != nil },
		time.Second, 10*time.Millisecond, "host never bound its listener")
	return session, slot, host.Addr().String()
}

// awaitStatus reads status frames until wanted arrives, failing the test on
// anything terminal that is not the wanted message.
func awaitStatus(t *testing.T, conn *Conn, wanted string) {
	t.Helper()
	for {
		payload, err := conn.ReadStatus()
		require.NoError(t, err)
		if _, _, ok := ota.ParseProgress(payload); ok {
			continue
		}
		if string(payload) == wanted {
			return
		}
	}
}

func TestHostCompletesTransfer(t *testing.T) {
	_, slot, addr := startTestHost(t, Config{})

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	image := bytes.Repeat([]byte{0xA5}, 1536)
	require.NoError(t, conn.WriteData([]byte(ota.TokenOpen)))
	require.NoError(t, conn.WriteData(ota.EncodeSize(uint32(len(image)))))
	for i := 0; i < len(image); i += 512 {
		require.NoError(t, conn.WriteData(image[i:i+512]))
	}
	require.NoError(t, conn.WriteData([]byte(ota.TokenDone)))

	awaitStatus(t, conn, ota.MsgCompleted)

	got, err := os.ReadFile(slot)
	require.NoError(t, err)
	assert.Equal(t, image, got)
}

func TestHostReportsProgressFrames(t *testing.T) {
	_, _, addr := startTestHost(t, Config{})

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteData([]byte(ota.TokenOpen)))
	require.NoError(t, conn.WriteData(ota.EncodeSize(1024)))
	require.NoError(t, conn.WriteData(bytes.Repeat([]byte{0x01}, 512)))

	for {
		payload, err := conn.ReadStatus()
		require.NoError(t, err)
		received, total, ok := ota.ParseProgress(payload)
		if !ok {
			continue
		}
		assert.Equal(t, uint32(512), received)
		assert.Equal(t, uint32(1024), total)
		break
	}

	require.NoError(t, conn.WriteData([]byte(ota.TokenAbort)))
	awaitStatus(t, conn, ota.MsgAborted)
}

func TestHostAbortsTransferOnDisconnect(t *testing.T) {
	session, slot, addr := startTestHost(t, Config{})

	// Status hooks run on the host's serve goroutine; a channel is the
	// only safe way to observe the abort from the test goroutine.
	aborted := make(chan struct{}, 1)
	session.OnStatus(func(state ota.UpdateState, message string) {
		if state == ota.StateAborted {
			select {
			case aborted <- struct{}{}:
			default:
			}
		}
	})

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)

	require.NoError(t, conn.WriteData([]byte(ota.TokenOpen)))
	require.NoError(t, conn.WriteData(ota.EncodeSize(1024)))
	require.NoError(t, conn.WriteData(bytes.Repeat([]byte{0x01}, 512)))
	awaitStatus(t, conn, ota.MsgReceiving)
	require.NoError(t, conn.Close())

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("disconnect must abort the transfer")
	}

	_, err = os.Stat(slot + ".staging")
	assert.True(t, os.IsNotExist(err), "staged bytes must be discarded")
}

func TestHostServesClientsSequentially(t *testing.T) {
	_, slot, addr := startTestHost(t, Config{})

	// First client completes a transfer and hangs up.
	first, err := Dial(addr, time.Second)
	require.NoError(t, err)
	require.NoError(t, first.WriteData([]byte(ota.TokenOpen)))
	require.NoError(t, first.WriteData(ota.EncodeSize(4)))
	require.NoError(t, first.WriteData([]byte{1, 2, 3, 4}))
	require.NoError(t, first.WriteData([]byte(ota.TokenDone)))
	awaitStatus(t, first, ota.MsgCompleted)
	require.NoError(t, first.Close())

	// The host goes back to accepting; a second client can update again.
	second, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer second.Close()
	image := []byte{9, 8, 7, 6, 5}
	require.NoError(t, second.WriteData([]byte(ota.TokenOpen)))
	require.NoError(t, second.WriteData(ota.EncodeSize(uint32(len(image)))))
	require.NoError(t, second.WriteData(image))
	require.NoError(t, second.WriteData([]byte(ota.TokenDone)))
	awaitStatus(t, second, ota.MsgCompleted)

	got, err := os.ReadFile(slot)
	require.NoError(t, err)
	assert.Equal(t, image, got)
}

func TestHostDropsIdleClient(t *testing.T) {
	session, _, addr := startTestHost(t, Config{IdleTimeout: 50 * time.Millisecond})

	aborted := make(chan struct{}, 1)
	session.OnStatus(func(state ota.UpdateState, message string) {
		if state == ota.StateAborted {
			select {
			case aborted <- struct{}{}:
			default:
			}
		}
	})

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteData([]byte(ota.TokenOpen)))
	require.NoError(t, conn.WriteData(ota.EncodeSize(1024)))

	// Go silent; the host must drop us and abort the open transfer.
	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("idle client must be dropped")
	}
}

func TestHostDropsClientExceedingPacketSize(t *testing.T) {
	session, slot, addr := startTestHost(t, Config{MaxPacketSize: 512})

	aborted := make(chan struct{}, 1)
	session.OnStatus(func(state ota.UpdateState, message string) {
		if state == ota.StateAborted {
			select {
			case aborted <- struct{}{}:
			default:
			}
		}
	})

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteData([]byte(ota.TokenOpen)))
	require.NoError(t, conn.WriteData(ota.EncodeSize(2048)))
	awaitStatus(t, conn, ota.MsgReceiving)

	// An oversized data write is a protocol violation; the host hangs up
	// and the open transfer aborts.
	require.NoError(t, conn.WriteData(bytes.Repeat([]byte{0x01}, 513)))

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("oversized write must drop the client")
	}

	_, err = os.Stat(slot + ".staging")
	assert.True(t, os.IsNotExist(err), "staged bytes must be discarded")
}

func TestHostRoutesCommands(t *testing.T) {
	session, _, addr := startTestHost(t, Config{})

	commands := make(chan string, 1)
	session.OnCommand(func(command string) { commands <- command })

	conn, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteCommand([]byte("REBOOT")))

	select {
	case got := <-commands:
		assert.Equal(t, "REBOOT", got)
	case <-time.After(time.Second):
		t.Fatal("command never reached the session")
	}
}
