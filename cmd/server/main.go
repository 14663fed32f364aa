package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/VcentLngW/podcast-streaming-restapi/internal/app"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/config"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/db"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/models"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/service"
	"github.com/VcentLngW/podcast-streaming-restapi/internal/store"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		runServe(nil)
		return
	}

	switch args[0] {
	case "serve":
		runServe(args[1:])
	case "admin":
		if err := runAdmin(args[1:]); err != nil {
			log.Fatal(err)
		}
	case "help", "-h", "--help":
		printUsage()
	default:
		printUsage()
		os.Exit(2)
	}
}

func runServe(args []string) {
	serveFlagSet := flag.NewFlagSet("serve", flag.ContinueOnError)
	serveFlagSet.SetOutput(io.Discard)
	consoleMode := serveFlagSet.Bool("console", false, "enable runtime admin console")
	if err := serveFlagSet.Parse(args); err != nil {
		log.Fatalf("parse serve args: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	container, cleanup, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}
	defer cleanup() //nolint:errcheck

	log.Printf("podcast backend listening on %s (storage=%s)", cfg.Addr, container.Config.Storage)
	if cfg.BootstrapToken != "" {
		log.Printf("bootstrap token enabled for user=%s", cfg.BootstrapUser)
	}
	if *consoleMode {
		log.Printf("runtime admin console enabled")
		go runRuntimeConsole(cfg, container.UserService, container.MediaStorage)
	}
	log.Fatal(container.Router.Listen(cfg.Addr))
}

func runAdmin(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("invalid admin command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sqliteDB, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqliteDB.Close() //nolint:errcheck

	if err := db.Migrate(sqliteDB); err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}

	sqlStore := store.New(sqliteDB)
	userService := service.NewUserService(sqlStore)
	mediaStorage := service.NewMediaStorageService(sqlStore)
	return executeAdminCommand(context.Background(), cfg.AllowRegistration, userService, mediaStorage, args)
}

func executeAdminCommand(ctx context.Context, allowRegistrationFallback bool, userService *service.UserService, mediaStorage *service.MediaStorageService, args []string) error {
	switch args[0] {
	case "user":
		return runAdminUser(ctx, userService, args[1:])
	case "token":
		return runAdminToken(ctx, userService, args[1:])
	case "registration":
		return runAdminRegistration(ctx, userService, allowRegistrationFallback, args[1:])
	case "storage":
		return runAdminStorage(ctx, mediaStorage, args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func runRuntimeConsole(cfg config.Config, userService *service.UserService, mediaStorage *service.MediaStorageService) {
	fmt.Println("Runtime Console: type a command, e.g. user create host@example.com some-pass")
	fmt.Println("Runtime Console: type help for commands, exit to close the console (server keeps running)")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("podcasts> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("console read error: %v\n", err)
			}
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parsed, err := parseCommandLine(line)
		if err != nil {
			fmt.Printf("parse command error: %v\n", err)
			continue
		}
		if len(parsed) == 0 {
			continue
		}

		switch strings.ToLower(parsed[0]) {
		case "help":
			printRuntimeConsoleUsage()
			continue
		case "exit", "quit":
			fmt.Println("runtime console closed")
			return
		case "admin":
			parsed = parsed[1:]
			if len(parsed) == 0 {
				printRuntimeConsoleUsage()
				continue
			}
		}

		if err := executeAdminCommand(context.Background(), cfg.AllowRegistration, userService, mediaStorage, parsed); err != nil {
			fmt.Printf("command failed: %v\n", err)
		}
	}
}

func runAdminUser(ctx context.Context, userService *service.UserService, args []string) error {
	if len(args) < 3 || args[0] != "create" {
		printUsage()
		return fmt.Errorf("usage: admin user create <email> <password> [role]")
	}

	email := strings.TrimSpace(args[1])
	password := strings.TrimSpace(args[2])
	role := "USER"
	if len(args) >= 4 {
		role = strings.TrimSpace(args[3])
	}

	admin := &models.User{Role: "ADMIN"}
	user, err := userService.CreateUser(ctx, admin, service.CreateUserInput{
		Email:    email,
		Password: password,
		Role:     role,
	}, true)
	if err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	fmt.Printf("user created: id=%d email=%s role=%s\n", user.ID, user.Email, user.Role)
	return nil
}

func runAdminToken(ctx context.Context, userService *service.UserService, args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("usage: admin token <create|list|revoke> ...")
	}
	switch args[0] {
	case "create":
		return runAdminTokenCreate(ctx, userService, args[1:])
	case "list":
		return runAdminTokenList(ctx, userService, args[1:])
	case "revoke":
		return runAdminTokenRevoke(ctx, userService, args[1:])
	default:
		printUsage()
		return fmt.Errorf("unknown token subcommand: %s", args[0])
	}
}

func runAdminTokenCreate(ctx context.Context, userService *service.UserService, args []string) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("usage: admin token create <email_or_id> [description] [--ttl 7d|24h] [--expires-at 2026-12-31T23:59:59Z]")
	}

	identifier := strings.TrimSpace(args[0])
	flagSet := flag.NewFlagSet("admin token create", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	descriptionFlag := flagSet.String("description", "", "token description")
	ttlFlag := flagSet.String("ttl", "", "token ttl, e.g. 24h")
	expiresAtFlag := flagSet.String("expires-at", "", "token expiry in RFC3339")
	if err := flagSet.Parse(args[1:]); err != nil {
		return fmt.Errorf("parse token args failed: %w", err)
	}

	description := strings.TrimSpace(*descriptionFlag)
	if description == "" && len(flagSet.Args()) > 0 {
		description = strings.TrimSpace(strings.Join(flagSet.Args(), " "))
	}
	if strings.TrimSpace(*descriptionFlag) != "" && len(flagSet.Args()) > 0 {
		return fmt.Errorf("description already set by --description, remove extra positional text")
	}

	ttlRaw := strings.TrimSpace(*ttlFlag)
	expiresAtRaw := strings.TrimSpace(*expiresAtFlag)
	if ttlRaw != "" && expiresAtRaw != "" {
		return fmt.Errorf("--ttl and --expires-at cannot be used together")
	}

	var expiresAt *time.Time
	if ttlRaw != "" {
		ttl, err := parseTTL(ttlRaw)
		if err != nil {
			return fmt.Errorf("invalid --ttl %q: %w", ttlRaw, err)
		}
		if ttl <= 0 {
			return fmt.Errorf("--ttl must be greater than 0")
		}
		v := time.Now().UTC().Add(ttl)
		expiresAt = &v
	}
	if expiresAtRaw != "" {
		v, err := time.Parse(time.RFC3339, expiresAtRaw)
		if err != nil {
			return fmt.Errorf("invalid --expires-at %q, expected RFC3339", expiresAtRaw)
		}
		v = v.UTC()
		expiresAt = &v
	}

	user, token, err := userService.CreateAccessTokenForUserWithExpiry(ctx, identifier, description, expiresAt)
	if err != nil {
		if errors.Is(err, service.ErrTokenAlreadyExists) {
			return fmt.Errorf("create token failed: token collision, please retry")
		}
		if errors.Is(err, service.ErrInvalidTokenExpiry) {
			return fmt.Errorf("create token failed: expires-at must be in the future")
		}
		return fmt.Errorf("create token failed: %w", err)
	}
	fmt.Printf("token created: user=%s(%d)\n", user.Email, user.ID)
	fmt.Printf("accessToken=%s\n", token)
	if expiresAt != nil {
		fmt.Printf("expiresAt=%s\n", expiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func runAdminTokenList(ctx context.Context, userService *service.UserService, args []string) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("usage: admin token list <email_or_id>")
	}
	identifier := strings.TrimSpace(args[0])
	user, tokens, err := userService.ListAccessTokensForUser(ctx, identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user not found: %s", identifier)
		}
		return fmt.Errorf("list tokens failed: %w", err)
	}

	fmt.Printf("tokens for user=%s(%d), count=%d\n", user.Email, user.ID, len(tokens))
	fmt.Println("id\tprefix\tcreatedAt\texpiresAt\trevokedAt\tlastUsedAt\tdescription")
	for _, token := range tokens {
		fmt.Printf(
			"%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			token.ID,
			token.TokenPrefix,
			token.CreatedAt.UTC().Format(time.RFC3339),
			formatOptionalTime(token.ExpiresAt),
			formatOptionalTime(token.RevokedAt),
			formatOptionalTime(token.LastUsedAt),
			strings.TrimSpace(token.Description),
		)
	}
	return nil
}

func runAdminTokenRevoke(ctx context.Context, userService *service.UserService, args []string) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("usage: admin token revoke <token_id>")
	}
	tokenID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || tokenID <= 0 {
		return fmt.Errorf("invalid token_id: %s", args[0])
	}

	token, err := userService.RevokeAccessTokenByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("token not found: %d", tokenID)
		}
		if errors.Is(err, service.ErrTokenAlreadyRevoked) {
			fmt.Printf("token already revoked: id=%d revokedAt=%s\n", tokenID, formatOptionalTime(token.RevokedAt))
			return nil
		}
		return fmt.Errorf("revoke token failed: %w", err)
	}
	fmt.Printf("token revoked: id=%d user_id=%d revokedAt=%s\n", token.ID, token.UserID, formatOptionalTime(token.RevokedAt))
	return nil
}

func runAdminRegistration(ctx context.Context, userService *service.UserService, fallback bool, args []string) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("usage: admin registration <status|enable|disable>")
	}
	switch args[0] {
	case "status":
		allow, err := userService.ResolveAllowRegistration(ctx, fallback)
		if err != nil {
			return fmt.Errorf("read registration setting failed: %w", err)
		}
		fmt.Printf("allow_registration=%t\n", allow)
		return nil
	case "enable":
		if err := userService.SetAllowRegistration(ctx, true); err != nil {
			return fmt.Errorf("enable registration failed: %w", err)
		}
		fmt.Println("allow_registration=true")
		return nil
	case "disable":
		if err := userService.SetAllowRegistration(ctx, false); err != nil {
			return fmt.Errorf("disable registration failed: %w", err)
		}
		fmt.Println("allow_registration=false")
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown registration subcommand: %s", args[0])
	}
}

func runAdminStorage(ctx context.Context, mediaStorage *service.MediaStorageService, args []string) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("usage: admin storage <status|use-local|use-s3> ...")
	}
	switch args[0] {
	case "status":
		profile, err := mediaStorage.Current(ctx)
		if err != nil {
			return fmt.Errorf("read media storage profile failed: %w", err)
		}
		fmt.Println(profile.Summary())
		return nil
	case "use-local":
		if err := mediaStorage.UseLocal(ctx); err != nil {
			return fmt.Errorf("switch to local storage failed: %w", err)
		}
		fmt.Println("backend=local")
		return nil
	case "use-s3":
		flagSet := flag.NewFlagSet("admin storage use-s3", flag.ContinueOnError)
		flagSet.SetOutput(io.Discard)
		endpoint := flagSet.String("endpoint", "", "s3 endpoint")
		region := flagSet.String("region", "", "s3 region")
		bucket := flagSet.String("bucket", "", "s3 bucket")
		accessKeyID := flagSet.String("access-key-id", "", "s3 access key id")
		accessSecret := flagSet.String("secret", "", "s3 access key secret")
		pathStyle := flagSet.Bool("path-style", true, "use path style addressing")
		if err := flagSet.Parse(args[1:]); err != nil {
			return fmt.Errorf("parse storage args failed: %w", err)
		}
		err := mediaStorage.UseS3(ctx, config.S3Config{
			Endpoint:     *endpoint,
			Region:       *region,
			Bucket:       *bucket,
			AccessKeyID:  *accessKeyID,
			AccessSecret: *accessSecret,
			UsePathStyle: *pathStyle,
		})
		if err != nil {
			return fmt.Errorf("switch to s3 storage failed: %w", err)
		}
		fmt.Println("backend=s3")
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown storage subcommand: %s", args[0])
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/server")
	fmt.Println("  go run ./cmd/server serve [--console]")
	fmt.Println("  go run ./cmd/server admin user create <email> <password> [role]")
	fmt.Println("  go run ./cmd/server admin token create <email_or_id> [description] [--ttl 7d|24h] [--expires-at 2026-12-31T23:59:59Z]")
	fmt.Println("  go run ./cmd/server admin token list <email_or_id>")
	fmt.Println("  go run ./cmd/server admin token revoke <token_id>")
	fmt.Println("  go run ./cmd/server admin registration status|enable|disable")
	fmt.Println("  go run ./cmd/server admin storage status")
	fmt.Println("  go run ./cmd/server admin storage use-local")
	fmt.Println("  go run ./cmd/server admin storage use-s3 --endpoint ... --region ... --bucket ... --access-key-id ... --secret ...")
}

func printRuntimeConsoleUsage() {
	fmt.Println("Runtime Console Commands:")
	fmt.Println("  user create <email> <password> [role]")
	fmt.Println("  token create <email_or_id> [description] [--ttl 7d|24h] [--expires-at 2026-12-31T23:59:59Z]")
	fmt.Println("  token list <email_or_id>")
	fmt.Println("  token revoke <token_id>")
	fmt.Println("  registration status|enable|disable")
	fmt.Println("  storage status|use-local|use-s3")
	fmt.Println("  help")
	fmt.Println("  exit")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTTL(raw string) (time.Duration, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return 0, fmt.Errorf("empty ttl")
	}

	if d, err := time.ParseDuration(normalized); err == nil {
		return d, nil
	}

	for _, suffix := range []string{"days", "day", "d"} {
		if !strings.HasSuffix(normalized, suffix) {
			continue
		}
		dayPart := strings.TrimSpace(strings.TrimSuffix(normalized, suffix))
		if dayPart == "" {
			return 0, fmt.Errorf("invalid day ttl")
		}
		days, err := strconv.ParseFloat(dayPart, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid day ttl")
		}
		if days <= 0 {
			return 0, fmt.Errorf("day ttl must be greater than 0")
		}
		return time.Duration(days * float64(24*time.Hour)), nil
	}

	return 0, fmt.Errorf("unsupported ttl format")
}

func parseCommandLine(input string) ([]string, error) {
	var args []string
	var current strings.Builder
	var quote rune

	for _, r := range input {
		switch r {
		case '\'', '"':
			if quote == 0 {
				// Quotes wrap a token only at token start; mid-token
				// quotes are literals.
				if current.Len() == 0 {
					quote = r
					continue
				}
				current.WriteRune(r)
				continue
			}
			if quote == r {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case ' ', '\t':
			if quote != 0 {
				current.WriteRune(r)
				continue
			}
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args, nil
}
