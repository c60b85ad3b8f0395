// tail.go — кольцевой буфер последних байт вывода дочернего процесса.
package supervisor

import (
	"strings"
	"sync"
)

// tailBuffer — io.Writer, сохраняющий последние limit байт.
// Потокобезопасен: в него пишут и stdout, и stderr дочернего процесса.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

// Write реализует io.Writer. Никогда не возвращает ошибку: вывод
// дочернего процесса не должен падать из-за диагностики.
func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

// String возвращает накопленный хвост без завершающих переводов строк.
func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimRight(string(t.buf), "\n")
}
