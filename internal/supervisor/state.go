// state.go — конечный автомат жизненного цикла дочернего сервера.
//
// Переходы:
//   - stopped → starting — запрос запуска
//   - starting → running — health check дочернего сервера прошёл
//   - starting → stopped — процесс умер до готовности
//   - running → stopping — запрос остановки
//   - running → stopped — процесс умер неожиданно (watchdog)
//   - stopping → stopped — процесс завершился
//
// Force-переход (принудительное убийство) допустим из любого состояния.
//
// Потокобезопасен через sync.RWMutex.
package supervisor

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние жизненного цикла дочернего сервера.
type State string

const (
	// StateStopped — процесс не запущен.
	StateStopped State = "stopped"
	// StateStarting — процесс порождён, ожидается готовность.
	StateStarting State = "starting"
	// StateRunning — процесс жив и прошёл health check.
	StateRunning State = "running"
	// StateStopping — процессу послан сигнал завершения.
	StateStopping State = "stopping"
)

// TransitionRecord — запись о переходе между состояниями.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// validTransitions — матрица допустимых переходов.
// Ключ — текущее состояние, значение — набор допустимых целевых.
var validTransitions = map[State]map[State]bool{
	StateStopped:  {StateStarting: true},
	StateStarting: {StateRunning: true, StateStopped: true},
	StateRunning:  {StateStopping: true, StateStopped: true},
	StateStopping: {StateStopped: true},
}

// stateMachine — конечный автомат жизненного цикла.
// Потокобезопасен для одновременного чтения/записи.
type stateMachine struct {
	mu      sync.RWMutex
	current State
	history []TransitionRecord
}

// newStateMachine создаёт конечный автомат в состоянии stopped.
func newStateMachine() *stateMachine {
	return &stateMachine{
		current: StateStopped,
		history: make([]TransitionRecord, 0),
	}
}

// Current возвращает текущее состояние.
func (sm *stateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Is возвращает true, если текущее состояние совпадает с указанным.
func (sm *stateMachine) Is(s State) bool {
	return sm.Current() == s
}

// TransitionTo выполняет переход в указанное состояние.
// Возвращает TransitionError при недопустимом переходе.
func (sm *stateMachine) TransitionTo(target State, reason string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	transitions, ok := validTransitions[sm.current]
	if !ok || !transitions[target] {
		return &TransitionError{
			Code: "INVALID_STATE",
			Message: fmt.Sprintf("переход %s → %s недопустим",
				sm.current, target),
		}
	}

	sm.record(target, reason)
	return nil
}

// Force устанавливает состояние напрямую без валидации переходов.
// Используется при принудительном убийстве процесса.
func (sm *stateMachine) Force(target State, reason string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.current == target {
		return
	}
	sm.record(target, reason)
}

// record фиксирует переход. Вызывается под мьютексом.
func (sm *stateMachine) record(target State, reason string) {
	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	sm.current = target
}

// History возвращает историю переходов (копия).
func (sm *stateMachine) History() []TransitionRecord {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]TransitionRecord, len(sm.history))
	copy(result, sm.history)
	return result
}

// TransitionError — ошибка перехода между состояниями.
type TransitionError struct {
	Code    string // Машиночитаемый код
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
