package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"fairlaunch/cmd/internal/passphrase"
	"fairlaunch/config"
	"fairlaunch/crypto"
	"fairlaunch/native/fairlaunch"
	"fairlaunch/observability/logging"
	"fairlaunch/services/fairlaunchd/journal"
)

const (
	defaultPassEnv   = "FAIRLAUNCH_KEYSTORE_PASS"
	defaultSecretEnv = "FAIRLAUNCH_JWT_SECRET"
	defaultConfig    = "./fairlaunchd.toml"
)

const (
	exitOK    = 0
	exitUsage = 1
)

// errUsage marks failures caused by bad invocation rather than bad input.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return exitUsage
	}
	var err error
	switch args[0] {
	case "validate":
		err = runValidate(args[1:], stdout, stderr)
	case "withdrawable":
		err = runWithdrawable(args[1:], stdout, stderr)
	case "bitmap":
		err = runBitmap(args[1:], stdout, stderr)
	case "init-config":
		err = runInitConfig(args[1:], stdout, stderr)
	case "keygen":
		err = runKeygen(args[1:], stdout, stderr)
	case "token":
		err = runToken(args[1:], stdout, stderr)
	case "export-journal":
		err = runExportJournal(args[1:], stdout, stderr)
	default:
		usage(stderr)
		return exitUsage
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode is 2 plus the taxonomy position for sale rejections and 1 for
// everything else.
func exitCode(err error) int {
	if kind := fairlaunch.KindOf(err); kind != 0 {
		return 1 + int(kind)
	}
	return exitUsage
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `Usage: fairlaunchctl <command> [flags]

Commands:
  validate        check every sale in a manifest
  withdrawable    quote the issuer withdrawal for a settled sale
  bitmap          build a lottery bitmap from winning ticket indices
  init-config     write a default daemon configuration
  keygen          create an operator keystore
  token           mint an operator bearer token
  export-journal  dump the event journal to a parquet file`)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func runValidate(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("validate", stderr)
	manifest := fs.String("manifest", "", "Path to the YAML sale manifest")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *manifest == "" {
		return fmt.Errorf("%w: -manifest is required", errUsage)
	}
	sales, err := config.LoadManifests(*manifest)
	if err != nil {
		return err
	}
	var first error
	for _, sale := range sales {
		if err := fairlaunch.Validate(sale); err != nil {
			fmt.Fprintf(stdout, "%s\tinvalid\t%s\t%s\n", sale.Code, fairlaunch.Code(err), err)
			if first == nil {
				first = err
			}
			continue
		}
		fmt.Fprintf(stdout, "%s\tok\tticks=%d\n", sale.Code, sale.Ticks())
	}
	return first
}

func findSale(path, code string) (*fairlaunch.SaleConfig, error) {
	sales, err := config.LoadManifests(path)
	if err != nil {
		return nil, err
	}
	for _, sale := range sales {
		if sale.Code == code {
			return sale, nil
		}
	}
	if code == "" && len(sales) == 1 {
		return sales[0], nil
	}
	return nil, fairlaunch.ErrSaleNotFound
}

func runWithdrawable(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("withdrawable", stderr)
	manifest := fs.String("manifest", "", "Path to the YAML sale manifest")
	code := fs.String("code", "", "Sale code (optional when the manifest holds one sale)")
	supply := fs.Uint64("supply", 0, "Circulating supply of the sale token")
	balance := fs.Uint64("balance", 0, "Current treasury balance")
	snapshot := fs.String("snapshot", "", "Treasury snapshot recorded at the first withdrawal, if any")
	now := fs.Int64("now", time.Now().Unix(), "Unix time to quote at")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *manifest == "" {
		return fmt.Errorf("%w: -manifest is required", errUsage)
	}
	cfg, err := findSale(*manifest, strings.TrimSpace(*code))
	if err != nil {
		return err
	}
	if err := fairlaunch.Validate(cfg); err != nil {
		return err
	}
	st, err := fairlaunch.NewSaleState(cfg)
	if err != nil {
		return err
	}
	st.LotterySealed = true
	if raw := strings.TrimSpace(*snapshot); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid -snapshot %q", errUsage, raw)
		}
		st.Snapshot = &value
	}
	amount, _, err := fairlaunch.ComputeWithdrawable(cfg, st, fairlaunch.WithdrawInput{
		Now:             *now,
		TokenSupply:     *supply,
		TreasuryBalance: *balance,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, amount)
	return nil
}

func runBitmap(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("bitmap", stderr)
	capacity := fs.Uint64("capacity", 0, "Number of accepted bids")
	winners := fs.String("winners", "", "Comma separated winning ticket indices")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *capacity == 0 {
		return fmt.Errorf("%w: -capacity must be positive", errUsage)
	}
	bm := fairlaunch.NewBitmap(*capacity)
	for _, field := range strings.Split(*winners, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		index, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid winner %q", errUsage, field)
		}
		if err := bm.Set(index); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "%s\nones=%d\n", bm.Hex(), bm.Ones())
	return nil
}

func runInitConfig(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("init-config", stderr)
	path := fs.String("config", defaultConfig, "Where to write the configuration")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if _, err := config.WriteDefault(*path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists", *path)
		}
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", *path)
	return nil
}

func runKeygen(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("keygen", stderr)
	path := fs.String("keystore", "operator.keystore", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if _, err := os.Stat(*path); err == nil && !*force {
		return fmt.Errorf("keystore %s already exists (use -force to overwrite)", *path)
	}
	pass, err := passphrase.NewSource(*passEnv, "operator keystore passphrase").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*path, key, pass); err != nil {
		return err
	}
	account := key.Account()
	fmt.Fprintf(stdout, "%s\n%s\n", crypto.FromCommon(account).String(), account.Hex())
	return nil
}

func runToken(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("token", stderr)
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable holding the HMAC secret")
	scopes := fs.String("scope", "", "Space or comma separated scopes")
	subject := fs.String("sub", "", "Subject account (required for treasury withdrawals)")
	issuer := fs.String("issuer", "fairlaunch", "Token issuer")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return fmt.Errorf("%s is not set", *secretEnv)
	}
	claims := jwt.MapClaims{
		"scope": strings.Join(strings.FieldsFunc(*scopes, func(r rune) bool { return r == ',' || r == ' ' }), " "),
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(*ttl).Unix(),
	}
	if *issuer != "" {
		claims["iss"] = *issuer
	}
	if sub := strings.TrimSpace(*subject); sub != "" {
		account, err := crypto.ParseAccount(sub)
		if err != nil {
			return fmt.Errorf("%w: -sub: %v", errUsage, err)
		}
		claims["sub"] = account.Hex()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, signed)
	return nil
}

func runExportJournal(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("export-journal", stderr)
	driver := fs.String("driver", config.JournalSQLite, "Journal driver (sqlite or postgres)")
	dsn := fs.String("dsn", "", "Journal DSN or sqlite file path")
	out := fs.String("out", "journal.parquet", "Output parquet file")
	sale := fs.String("sale", "", "Only export events of this sale")
	kind := fs.String("type", "", "Only export events of this type")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*dsn) == "" {
		return fmt.Errorf("%w: -dsn is required", errUsage)
	}
	logger := logging.SetupWithOptions("fairlaunchctl", "", logging.Options{Level: "warn", Output: stderr})
	db, err := journal.Open(*driver, *dsn)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	j, err := journal.New(db, logger)
	if err != nil {
		return err
	}
	n, err := j.ExportParquet(context.Background(), *out, journal.Query{Sale: *sale, Type: *kind})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported %d events to %s\n", n, *out)
	return nil
}
