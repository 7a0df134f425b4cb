package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/shopkeeper/internal/client/config"
	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/client/replica"
	"github.com/dmitrijs2005/shopkeeper/internal/client/services"
	"github.com/dmitrijs2005/shopkeeper/internal/client/storage"
	"github.com/dmitrijs2005/shopkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/shopkeeper/internal/client/transport"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
)

// syncRunner is the part of syncer.Syncer the App drives.
type syncRunner interface {
	Run(ctx context.Context, force bool) syncer.Result
	SetSession(sess *models.Session)
}

// roundScheduler is the part of syncer.Scheduler the App drives.
type roundScheduler interface {
	Start(ctx context.Context)
	Stop()
	Trigger()
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	store       *storage.Store
	transport   transport.Transport
	authService services.AuthService
	replica     *replica.Replica
	syncer      syncRunner
	scheduler   roundScheduler
	watcher     *syncer.Watcher
	httpClient  *http.Client

	session *models.Session
	reader  *bufio.Reader
	out     io.Writer
}

// NewApp opens the replica at cfg.DatabasePath and wires the sync stack. A
// config without a server address yields an App that works purely locally.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	store, err := storage.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	tr, err := transport.New(cfg)
	if err != nil {
		if !errors.Is(err, common.ErrNoServer) {
			_ = store.Close()
			return nil, err
		}
		logger.Warn(ctx, "No server configured, running local only")
		tr = nil
	}

	rep := replica.New(store.DB, store, logger)

	var pinger syncer.Pinger
	if tr != nil {
		pinger = tr
	}
	watcher := syncer.NewWatcher(pinger, cfg.OnlineCheckInterval, logger)

	sy := syncer.New(rep, tr, logger)
	sy.SetOnline(watcher.Online)

	a := &App{
		config:      cfg,
		logger:      logger,
		store:       store,
		transport:   tr,
		authService: services.NewAuthService(tr, store.DB),
		replica:     rep,
		syncer:      sy,
		watcher:     watcher,
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
	}

	sched := syncer.NewScheduler(sy, cfg.SyncInterval, logger)
	sched.OnResult(a.reportRound)
	a.scheduler = sched
	watcher.OnOnline(sched.Trigger)

	return a, nil
}

// Run blocks in the REPL until the user exits or stdin closes.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	printlnFn("Welcome to Shopkeeper (type 'help' for commands)")

	a.watcher.Check(ctx)
	go a.watcher.Run(ctx)

	_ = a.Login(ctx)

	runREPL(ctx, a, a.getStatus, a.reader)
}

// Close stops background rounds and releases the transport and database.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.transport != nil {
		_ = a.transport.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

func (a *App) isLoggedIn() bool {
	return a.session != nil
}

func (a *App) mode() syncer.Mode {
	if a.watcher == nil {
		return syncer.ModeOffline
	}
	return a.watcher.Mode()
}

func (a *App) getStatus() string {
	s := ""
	if a.session != nil {
		s = a.session.UserName + " "
	}
	s = s + string(a.mode())
	return fmt.Sprintf("(%s)", s)
}

// reportRound surfaces background round outcomes without interrupting the
// prompt: failures become a one-line notice, quiet successes stay silent.
func (a *App) reportRound(res syncer.Result) {
	switch {
	case !res.Success && res.Err != nil:
		if errors.Is(res.Err, common.ErrDeviceOffline) {
			return
		}
		printlnFn("Sync failed:", res.Err.Error())
	case res.Pulled > 0:
		printlnFn(fmt.Sprintf("Synced, %d record(s) received", res.Pulled))
	}
}
