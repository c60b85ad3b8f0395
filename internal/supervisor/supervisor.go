// Пакет supervisor — управление жизненным циклом дочернего процесса
// HTTP-сервера скриншотов.
//
// Супервизор — единственный владелец дескриптора дочернего процесса:
// только он порождает, останавливает и принудительно убивает сервер.
// Запуск и остановка сериализуются (opMu); Status не блокируется
// на время ожидания готовности или завершения.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	apierrors "github.com/bigkaa/screenshot-server/internal/api/errors"
	"github.com/bigkaa/screenshot-server/internal/config"
	"github.com/bigkaa/screenshot-server/internal/domain/model"
	"github.com/bigkaa/screenshot-server/internal/settings"
)

// healthPollInterval — период опроса /health/ready при запуске.
const healthPollInterval = 200 * time.Millisecond

// watchdogInterval — период проверки живости дочернего процесса.
const watchdogInterval = time.Second

// tailSize — сколько последних байт вывода дочернего процесса
// сохраняется для диагностики сбоев.
const tailSize = 4096

// LifecycleError — ошибка операции жизненного цикла с машиночитаемым
// кодом (PROCESS_FAILURE, STOP_TIMED_OUT, WARNING_NOT_ACCEPTED,
// PORT_IN_USE, INVALID_STATE, INVALID_ARGUMENT).
type LifecycleError struct {
	Code    string
	Message string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// child — дескриптор запущенного дочернего процесса.
type child struct {
	cmd      *exec.Cmd
	waitDone chan struct{} // закрывается после возврата Wait
	waitErr  error         // валиден после закрытия waitDone
}

// exited сообщает, завершился ли процесс (неблокирующе).
func (c *child) exited() bool {
	select {
	case <-c.waitDone:
		return true
	default:
		return false
	}
}

// Supervisor управляет дочерним процессом сервера скриншотов.
// Потокобезопасен.
type Supervisor struct {
	cfg      *config.SupervisorConfig
	settings *settings.Store
	logger   *slog.Logger

	sm *stateMachine

	// opMu сериализует start/stop. ForceKill намеренно его обходит:
	// принудительное убийство должно работать и пока start ждёт
	// готовности.
	opMu sync.Mutex

	// mu защищает child, lastErr, tail.
	mu      sync.Mutex
	child   *child
	lastErr *string
	tail    *tailBuffer

	// healthCheck подменяется в тестах.
	healthCheck func(ctx context.Context, port int) error

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New создаёт супервизор и запускает watchdog живости дочернего
// процесса.
func New(cfg *config.SupervisorConfig, store *settings.Store, logger *slog.Logger) *Supervisor {
	return NewWithHealthCheck(cfg, store, logger, nil)
}

// NewWithHealthCheck создаёт супервизор с нестандартной проверкой
// готовности дочернего сервера. nil означает HTTP-опрос
// /health/ready.
func NewWithHealthCheck(cfg *config.SupervisorConfig, store *settings.Store, logger *slog.Logger, healthCheck func(ctx context.Context, port int) error) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		settings: store,
		logger:   logger.With(slog.String("component", "supervisor")),
		sm:       newStateMachine(),
		stopCh:   make(chan struct{}),
	}
	s.healthCheck = healthCheck
	if s.healthCheck == nil {
		s.healthCheck = s.httpHealthCheck
	}

	s.wg.Add(1)
	go s.watchdog()

	return s
}

// Close останавливает watchdog и дочерний процесс (best effort).
func (s *Supervisor) Close() {
	close(s.stopCh)
	s.wg.Wait()

	if err := s.StartServer(false); err != nil {
		s.logger.Warn("Остановка дочернего процесса при завершении не удалась",
			slog.String("error", err.Error()),
		)
	}
}

// StartServer запускает (enable=true) или останавливает (enable=false)
// дочерний сервер. Повторный запуск работающего сервера и повторная
// остановка остановленного — no-op без ошибки.
func (s *Supervisor) StartServer(enable bool) error {
	if enable {
		return s.start()
	}
	return s.stop()
}

// start порождает дочерний процесс и ждёт его готовности.
func (s *Supervisor) start() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.sm.Is(StateRunning) {
		return nil
	}

	// Предупреждение должно быть принято до первого запуска.
	// Это штатный отказ, поле error статуса не трогаем.
	if !s.settings.GetBool(settings.KeyAcceptedWarning, false) {
		return &LifecycleError{
			Code:    apierrors.CodeWarningNotAccepted,
			Message: "Перед запуском сервера необходимо принять предупреждение",
		}
	}

	port := s.settings.GetInt(settings.KeyPort, config.DefaultPort)

	// Порт мог занять другой процесс, пока сервер был остановлен.
	if portInUse(port) {
		return s.fail(apierrors.CodePortInUse,
			fmt.Sprintf("Порт %d уже занят другим процессом", port))
	}

	if err := s.sm.TransitionTo(StateStarting, "запрос запуска"); err != nil {
		return err
	}
	// Ошибка прошлого сбоя сбрасывается при принятии запроса запуска,
	// а не после готовности: опрашивающий клиент не должен видеть
	// устаревшее сообщение весь период starting.
	s.clearError()

	c, err := s.spawn(port)
	if err != nil {
		s.sm.Force(StateStopped, "процесс не запустился")
		return s.fail(apierrors.CodeProcessFailure,
			fmt.Sprintf("Не удалось запустить сервер: %s", err))
	}

	s.mu.Lock()
	s.child = c
	s.mu.Unlock()

	if err := s.awaitReady(c, port); err != nil {
		return err
	}

	if err := s.sm.TransitionTo(StateRunning, "health check пройден"); err != nil {
		// ForceKill успел перевести автомат в stopped, пока мы ждали.
		return err
	}

	s.logger.Info("Дочерний сервер запущен",
		slog.Int("port", port),
		slog.Int("pid", c.cmd.Process.Pid),
	)
	return nil
}

// spawn порождает дочерний процесс с окружением из настроек.
func (s *Supervisor) spawn(port int) (*child, error) {
	tail := newTailBuffer(tailSize)

	cmd := exec.Command(s.cfg.BackendBin)
	cmd.Env = append(os.Environ(),
		"HOST="+s.cfg.ChildHost,
		"PORT="+strconv.Itoa(port),
		"STEAM_ROOT="+s.cfg.SteamRoot,
	)
	cmd.Stdout = tail
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	c := &child{cmd: cmd, waitDone: make(chan struct{})}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.waitDone)
	}()

	s.mu.Lock()
	s.tail = tail
	s.mu.Unlock()

	return c, nil
}

// awaitReady опрашивает /health/ready дочернего сервера до
// готовности, смерти процесса или истечения таймаута.
func (s *Supervisor) awaitReady(c *child, port int) error {
	deadline := time.Now().Add(s.cfg.StartTimeout)
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		// ForceKill мог перевести автомат в stopped — прекращаем ждать.
		if !s.sm.Is(StateStarting) {
			return &LifecycleError{
				Code:    apierrors.CodeProcessFailure,
				Message: "Запуск прерван принудительной остановкой",
			}
		}

		if c.exited() {
			s.sm.Force(StateStopped, "процесс умер до готовности")
			s.clearChild()
			return s.fail(apierrors.CodeProcessFailure,
				fmt.Sprintf("Сервер завершился до готовности: %s", s.tailText()))
		}

		ctx, cancel := context.WithTimeout(context.Background(), healthPollInterval)
		err := s.healthCheck(ctx, port)
		cancel()
		if err == nil {
			return nil
		}

		if time.Now().After(deadline) {
			_ = c.cmd.Process.Kill()
			<-c.waitDone
			s.sm.Force(StateStopped, "таймаут готовности")
			s.clearChild()
			return s.fail(apierrors.CodeProcessFailure,
				fmt.Sprintf("Сервер не стал готов за %s", s.cfg.StartTimeout))
		}

		select {
		case <-ticker.C:
		case <-c.waitDone:
		}
	}
}

// stop останавливает дочерний процесс: SIGTERM, ожидание, при
// необходимости SIGKILL и повторное ожидание.
func (s *Supervisor) stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.sm.Is(StateStopped) {
		return nil
	}

	s.mu.Lock()
	c := s.child
	s.mu.Unlock()

	if c == nil {
		s.sm.Force(StateStopped, "процесс отсутствует")
		return nil
	}

	if err := s.sm.TransitionTo(StateStopping, "запрос остановки"); err != nil {
		return err
	}

	s.logger.Info("Останавливаем дочерний сервер", slog.Int("pid", c.cmd.Process.Pid))

	_ = c.cmd.Process.Signal(syscall.SIGTERM)
	if waitExit(c, s.cfg.StopTimeout) {
		s.finishStop(c, "завершился по SIGTERM")
		return nil
	}

	s.logger.Warn("Сервер не завершился по SIGTERM, посылаем SIGKILL")
	_ = c.cmd.Process.Kill()
	if waitExit(c, s.cfg.StopTimeout) {
		s.finishStop(c, "убит SIGKILL")
		return nil
	}

	// Процесс не умер даже после SIGKILL — вероятно, завис в
	// непрерываемом системном вызове. Дескриптор бросаем.
	s.sm.Force(StateStopped, "зомби после SIGKILL")
	s.clearChild()
	return s.fail(apierrors.CodeStopTimedOut,
		fmt.Sprintf("Сервер не завершился за %s после SIGKILL", s.cfg.StopTimeout))
}

// finishStop фиксирует штатную остановку.
func (s *Supervisor) finishStop(c *child, reason string) {
	s.sm.Force(StateStopped, reason)
	s.clearChild()
	s.clearError()
	s.logger.Info("Дочерний сервер остановлен", slog.String("reason", reason))
}

// ForceKill немедленно убивает дочерний процесс, минуя штатную
// последовательность остановки. Идемпотентен: на остановленном
// супервизоре — no-op без ошибки.
func (s *Supervisor) ForceKill() error {
	s.mu.Lock()
	c := s.child
	s.mu.Unlock()

	if c != nil {
		_ = c.cmd.Process.Kill()
		<-c.waitDone
	}

	s.sm.Force(StateStopped, "принудительное убийство")
	s.clearChild()
	return nil
}

// SetPort изменяет порт дочернего сервера. Допустимо только при
// остановленном сервере; значение валидируется и сохраняется на диск.
func (s *Supervisor) SetPort(port int) error {
	if port < config.PortMin || port > config.PortMax {
		return &LifecycleError{
			Code: apierrors.CodeInvalidArgument,
			Message: fmt.Sprintf("Порт %d вне допустимого диапазона %d-%d",
				port, config.PortMin, config.PortMax),
		}
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.sm.Is(StateStopped) {
		return &LifecycleError{
			Code:    apierrors.CodeInvalidState,
			Message: "Порт можно менять только при остановленном сервере",
		}
	}

	s.settings.Set(settings.KeyPort, port)
	if err := s.settings.Commit(); err != nil {
		return &LifecycleError{
			Code:    apierrors.CodeInternalError,
			Message: fmt.Sprintf("Не удалось сохранить настройки: %s", err),
		}
	}
	return nil
}

// SetAcceptedWarning фиксирует принятие предупреждения и сохраняет
// его на диск.
func (s *Supervisor) SetAcceptedWarning() error {
	s.settings.Set(settings.KeyAcceptedWarning, true)
	if err := s.settings.Commit(); err != nil {
		return &LifecycleError{
			Code:    apierrors.CodeInternalError,
			Message: fmt.Sprintf("Не удалось сохранить настройки: %s", err),
		}
	}
	return nil
}

// Status возвращает снимок состояния сервера. Не блокируется на
// операциях запуска/остановки.
func (s *Supervisor) Status() model.ServerState {
	s.mu.Lock()
	lastErr := s.lastErr
	s.mu.Unlock()

	return model.ServerState{
		Running:         s.sm.Is(StateRunning),
		IPAddress:       localIP(),
		Port:            s.settings.GetInt(settings.KeyPort, config.DefaultPort),
		AcceptedWarning: s.settings.GetBool(settings.KeyAcceptedWarning, false),
		Error:           lastErr,
	}
}

// State возвращает текущее состояние конечного автомата.
func (s *Supervisor) State() State {
	return s.sm.Current()
}

// LastError возвращает сообщение последней ошибки, если есть.
func (s *Supervisor) LastError() *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// --- Внутренние помощники ---

// fail записывает ошибку в статус и возвращает её как LifecycleError.
func (s *Supervisor) fail(code, message string) error {
	s.mu.Lock()
	msg := message
	s.lastErr = &msg
	s.mu.Unlock()

	s.logger.Error("Операция жизненного цикла не удалась",
		slog.String("code", code),
		slog.String("message", message),
	)
	return &LifecycleError{Code: code, Message: message}
}

// clearError очищает поле ошибки статуса.
func (s *Supervisor) clearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

// clearChild сбрасывает дескриптор дочернего процесса.
func (s *Supervisor) clearChild() {
	s.mu.Lock()
	s.child = nil
	s.mu.Unlock()
}

// tailText возвращает хвост вывода дочернего процесса.
func (s *Supervisor) tailText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tail == nil {
		return ""
	}
	return s.tail.String()
}

// watchdog обнаруживает неожиданную смерть дочернего процесса.
func (s *Supervisor) watchdog() {
	defer s.wg.Done()

	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkChild()
		}
	}
}

// checkChild фиксирует смерть процесса в состоянии running.
func (s *Supervisor) checkChild() {
	if !s.sm.Is(StateRunning) {
		return
	}

	s.mu.Lock()
	c := s.child
	s.mu.Unlock()

	if c == nil || !c.exited() {
		return
	}

	s.sm.Force(StateStopped, "процесс умер неожиданно")
	s.clearChild()
	_ = s.fail(apierrors.CodeProcessFailure,
		fmt.Sprintf("Сервер неожиданно завершился: %s", s.tailText()))
}

// httpHealthCheck опрашивает /health/ready дочернего сервера.
func (s *Supervisor) httpHealthCheck(ctx context.Context, port int) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/health/ready", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check вернул статус %d", resp.StatusCode)
	}
	return nil
}

// waitExit ожидает завершения процесса не дольше timeout.
func waitExit(c *child, timeout time.Duration) bool {
	select {
	case <-c.waitDone:
		return true
	case <-time.After(timeout):
		return false
	}
}

// portInUse проверяет, слушает ли кто-то уже этот порт.
func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp",
		net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// localIP возвращает адрес интерфейса по умолчанию. UDP-"соединение"
// не посылает пакетов, только выбирает исходящий адрес.
func localIP() string {
	conn, err := net.Dial("udp", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

// IsLifecycleError возвращает LifecycleError из цепочки ошибок.
func IsLifecycleError(err error) (*LifecycleError, bool) {
	var le *LifecycleError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
