package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis speaks enough RESP2 for GET, SET, DEL and GETDEL.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ln   net.Listener
}

func startFakeRedis(t *testing.T) *fakeRedis {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeRedis{data: map[string]string{}, ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeRedis) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if _, err := io.WriteString(conn, f.exec(args)); err != nil {
			return
		}
	}
}

func (f *fakeRedis) exec(args []string) string {
	if len(args) == 0 {
		return "-ERR empty command\r\n"
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "SET":
		f.data[args[1]] = args[2]
		return "+OK\r\n"
	case "GET":
		v, ok := f.data[args[1]]
		return bulk(v, ok)
	case "GETDEL":
		v, ok := f.data[args[1]]
		delete(f.data, args[1])
		return bulk(v, ok)
	case "DEL":
		n := 0
		for _, key := range args[1:] {
			if _, ok := f.data[key]; ok {
				delete(f.data, key)
				n++
			}
		}
		return fmt.Sprintf(":%d\r\n", n)
	default:
		return "-ERR unknown command '" + args[0] + "'\r\n"
	}
}

func bulk(v string, ok bool) string {
	if !ok {
		return "$-1\r\n"
	}
	return fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("unexpected line %q", line)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		header, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimRight(header, "\r\n")[1:])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func newFakeRedisStore(t *testing.T) (*RedisStore, *fakeRedis) {
	t.Helper()
	fake := startFakeRedis(t)
	store := NewRedisStore(&redis.Options{
		Addr:            fake.ln.Addr().String(),
		Protocol:        2,
		DisableIdentity: true,
		DialTimeout:     time.Second,
		ReadTimeout:     time.Second,
	})
	t.Cleanup(func() { _ = store.Close() })
	return store, fake
}

func TestRedisStoreTakeOnce(t *testing.T) {
	store, fake := newFakeRedisStore(t)
	ctx := context.Background()
	key := CardKey("u1", "card-1")

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	if err := store.Set(ctx, key, []byte("payload"), time.Hour); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	fake.mu.Lock()
	_, prefixed := fake.data[defaultRedisPrefix+key]
	fake.mu.Unlock()
	if !prefixed {
		t.Fatalf("expected key stored under prefix")
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		takes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, found, err := store.Take(ctx, key)
			if err != nil {
				t.Errorf("Take returned error: %v", err)
				return
			}
			if found {
				if string(v) != "payload" {
					t.Errorf("unexpected payload %q", v)
				}
				mu.Lock()
				takes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if takes != 1 {
		t.Fatalf("expected exactly one successful take, got %d", takes)
	}
	if _, found, err := store.Get(ctx, key); err != nil || found {
		t.Fatalf("expected key gone after take, found=%v err=%v", found, err)
	}
}

func TestRedisStoreGetDelete(t *testing.T) {
	store, _ := newFakeRedisStore(t)
	ctx := context.Background()

	if _, found, err := store.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("expected miss, found=%v err=%v", found, err)
	}
	if err := store.Set(ctx, SelectKey("u1"), []byte("ctx"), 0); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	v, found, err := store.Get(ctx, SelectKey("u1"))
	if err != nil || !found || string(v) != "ctx" {
		t.Fatalf("unexpected get %q found=%v err=%v", v, found, err)
	}
	if err := store.Delete(ctx, SelectKey("u1")); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, found, _ := store.Get(ctx, SelectKey("u1")); found {
		t.Fatalf("expected key deleted")
	}
}
