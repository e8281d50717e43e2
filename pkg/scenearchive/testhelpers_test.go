package scenearchive

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeFTPServer speaks just enough FTP to serve the archive fixtures:
// login, passive mode and RETR.
type fakeFTPServer struct {
	listener net.Listener
	files    map[string]string
	wg       sync.WaitGroup
}

func newFakeFTPServer(t *testing.T, files map[string]string) *fakeFTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeFTPServer{listener: ln, files: files}
	s.wg.Add(1)
	go s.serve()
	return s
}

func (s *fakeFTPServer) addr() string {
	return s.listener.Addr().String()
}

func (s *fakeFTPServer) close() {
	s.listener.Close() //nolint:errcheck
	s.wg.Wait()
}

func (s *fakeFTPServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *fakeFTPServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close() //nolint:errcheck

	conn.SetDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck

	writer := bufio.NewWriter(conn)
	reader := bufio.NewReader(conn)

	reply := func(format string, args ...any) {
		fmt.Fprintf(writer, format+"\r\n", args...) //nolint:errcheck
		writer.Flush()                              //nolint:errcheck
	}

	reply("220 Archive ready")

	var dataListener net.Listener
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")

		switch strings.ToUpper(cmd) {
		case "USER", "PASS":
			reply("230 User logged in")

		case "FEAT":
			reply("211-Features:")
			reply(" UTF8")
			reply("211 End")

		case "TYPE", "OPTS":
			reply("200 OK")

		case "EPSV":
			dataListener, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}
			port := dataListener.Addr().(*net.TCPAddr).Port
			reply("229 Entering Extended Passive Mode (|||%d|)", port)

		case "PASV":
			dataListener, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}
			addr := dataListener.Addr().(*net.TCPAddr)
			reply("227 Entering Passive Mode (127,0,0,1,%d,%d)", addr.Port/256, addr.Port%256)

		case "RETR":
			if dataListener == nil {
				reply("425 Use PASV first")
				continue
			}
			content, ok := s.files[arg]
			if !ok {
				reply("550 File not found")
				dataListener.Close() //nolint:errcheck
				dataListener = nil
				continue
			}
			reply("150 Opening data connection")
			dataConn, err := dataListener.Accept()
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}
			io.WriteString(dataConn, content) //nolint:errcheck
			dataConn.Close()                  //nolint:errcheck
			dataListener.Close()              //nolint:errcheck
			dataListener = nil
			reply("226 Transfer complete")

		case "QUIT":
			reply("221 Goodbye")
			return

		default:
			reply("502 Command not implemented")
		}
	}
}
