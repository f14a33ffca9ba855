// Data Audit System — аудит жизненного цикла файлов:
// сканирование файлового сервера и SharePoint, архивирование
// неактивных файлов в холодное хранилище, восстановление и выдача.
//
// Режимы запуска:
//
//	--init-db   применить миграции БД
//	--scan-fs   сканировать файловый сервер
//	--scan-sp   сканировать библиотеку SharePoint
//	--scan-all  оба сканирования
//	--serve     запустить HTTP-сервер
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/nambgit/archetype-data-audit/internal/api/handlers"
	"github.com/nambgit/archetype-data-audit/internal/archiver"
	"github.com/nambgit/archetype-data-audit/internal/coldstore"
	"github.com/nambgit/archetype-data-audit/internal/config"
	"github.com/nambgit/archetype-data-audit/internal/database"
	"github.com/nambgit/archetype-data-audit/internal/gateway"
	"github.com/nambgit/archetype-data-audit/internal/graph"
	"github.com/nambgit/archetype-data-audit/internal/ldapauth"
	"github.com/nambgit/archetype-data-audit/internal/repository"
	"github.com/nambgit/archetype-data-audit/internal/restorer"
	"github.com/nambgit/archetype-data-audit/internal/scanner"
	"github.com/nambgit/archetype-data-audit/internal/server"
)

func main() {
	initDB := flag.Bool("init-db", false, "применить миграции БД")
	scanFS := flag.Bool("scan-fs", false, "сканировать файловый сервер")
	scanSP := flag.Bool("scan-sp", false, "сканировать библиотеку SharePoint")
	scanAll := flag.Bool("scan-all", false, "сканировать оба источника")
	serve := flag.Bool("serve", false, "запустить HTTP-сервер")
	flag.Parse()

	if !*initDB && !*scanFS && !*scanSP && !*scanAll && !*serve {
		fmt.Fprintln(os.Stderr, "не указан режим запуска")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Data Audit System",
		slog.String("version", config.Version),
	)

	if err := run(cfg, logger, *initDB, *scanFS, *scanSP, *scanAll, *serve); err != nil {
		logger.Error("Завершение с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run выполняет запрошенные режимы. Сканирования выполняются до
// запуска сервера; ошибки сканирований собираются, а не прерывают
// друг друга.
func run(cfg *config.Config, logger *slog.Logger, initDB, scanFS, scanSP, scanAll, serve bool) error {
	ctx := context.Background()

	if initDB {
		if err := database.Migrate(cfg, logger); err != nil {
			return err
		}
		if !scanFS && !scanSP && !scanAll && !serve {
			return nil
		}
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repository.NewAuditRepository(pool)

	// Холодное хранилище обязательно для архивирования и выдачи
	// восстановленных копий; без бакета сервис работает в режиме
	// только-аудита.
	var store coldstore.Store
	if cfg.ArchiveBucket != "" {
		client, err := coldstore.New(cfg, logger)
		if err != nil {
			return err
		}
		store = client
	}

	var graphClient *graph.Client
	if cfg.GraphTenantID != "" {
		graphClient = graph.New(
			cfg.GraphTenantID, cfg.GraphClientID, cfg.GraphClientSecret,
			&http.Client{Timeout: cfg.GraphTimeout}, logger,
		)
	}

	var scanErrs []error

	if scanFS || scanAll {
		if err := cfg.RequireFileServer(); err != nil {
			return err
		}

		var arch scanner.CandidateArchiver
		if store != nil {
			svc, err := archiver.New(repo, store, cfg.FileServerRoot, logger)
			if err != nil {
				return err
			}
			arch = svc
		} else {
			logger.Warn("DA_ARCHIVE_BUCKET не задан: кандидаты на архивирование только логируются")
		}

		fs := scanner.NewFSScanner(repo, arch, cfg.FileServerRoot, cfg.Retention(), logger)
		if _, err := fs.Scan(ctx); err != nil {
			scanErrs = append(scanErrs, fmt.Errorf("сканирование файлового сервера: %w", err))
		}
	}

	if scanSP || scanAll {
		if err := cfg.RequireGraph(); err != nil {
			return err
		}

		sp := scanner.NewSPScanner(repo, graphClient, cfg.SharePointSiteID, logger)
		if _, err := sp.Scan(ctx); err != nil {
			scanErrs = append(scanErrs, fmt.Errorf("сканирование SharePoint: %w", err))
		}
	}

	if !serve {
		return errors.Join(scanErrs...)
	}

	if err := cfg.RequireAuth(); err != nil {
		return err
	}

	var verifier ldapauth.Verifier
	if cfg.ADServer != "" {
		verifier = ldapauth.NewADVerifier(cfg, logger)
	} else {
		verifier = ldapauth.NewStaticVerifier(cfg.AdminUsername, cfg.AdminPassword)
	}

	var remote gateway.RemoteStreamer
	if graphClient != nil {
		remote = graphClient
	}

	gw := gateway.New(repo, store, remote, cfg.StagingDir, cfg.CacheSize, cfg.CacheTTL, logger)
	rs := restorer.New(repo, store, cfg.RestoreDays, logger)

	h := server.Handlers{
		Health:    handlers.NewHealthHandler(database.NewReadinessChecker(pool)),
		Dashboard: handlers.NewDashboardHandler(repo, logger),
		Files:     handlers.NewFilesHandler(gw, rs, logger),
	}

	srv := server.New(cfg, logger, h, verifier)
	if err := srv.Run(); err != nil {
		scanErrs = append(scanErrs, err)
	}
	return errors.Join(scanErrs...)
}
