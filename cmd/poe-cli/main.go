// poe-cli manages a local proof-of-existence claim registry.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingnet-poe/config"
	"github.com/Klingon-tech/klingnet-poe/internal/keyring"
	"github.com/Klingon-tech/klingnet-poe/internal/ledger"
	"github.com/Klingon-tech/klingnet-poe/internal/log"
	"github.com/Klingon-tech/klingnet-poe/internal/storage"
	"github.com/Klingon-tech/klingnet-poe/pkg/types"
)

func main() {
	cfg, flags, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			config.PrintUsage(os.Stdout)
			return
		}
		fatal("%v", err)
	}
	if flags.Help {
		config.PrintUsage(os.Stdout)
		return
	}
	if flags.Version {
		fmt.Printf("poe-cli version %s\n", config.Version)
		return
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logging: %v", err)
	}

	args := flags.Args
	if len(args) == 0 {
		config.PrintUsage(os.Stderr)
		os.Exit(1)
	}

	cmd, cmdArgs := args[0], args[1:]
	log.CLI.Debug().Str("command", cmd).Str("datadir", cfg.DataDir).Msg("Dispatch")

	if err := run(cfg, cmd, cmdArgs); err != nil {
		if errors.Is(err, errUsage) {
			config.PrintUsage(os.Stderr)
			os.Exit(1)
		}
		fatal("%v", err)
	}
}

// errUsage reports an unknown top-level command.
var errUsage = errors.New("usage")

// run executes one command. Commands must not exit: the ledger close and
// key zeroing are deferred.
func run(cfg *config.Config, cmd string, args []string) error {
	switch cmd {
	case "init":
		return cmdInit(cfg)
	case "key":
		return cmdKey(cfg, args)
	case "claim":
		return cmdClaim(cfg, args)
	case "block":
		return cmdBlock(cfg, args)
	case "status":
		return cmdStatus(cfg)
	case "events":
		return cmdEvents(cfg, args)
	case "help":
		config.PrintUsage(os.Stdout)
		return nil
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		return errUsage
	}
}

// ── init ────────────────────────────────────────────────────────────────

func cmdInit(cfg *config.Config) error {
	// config.Load already created everything; opening the ledger binds params.
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	p := l.Params()
	fmt.Printf("Data directory: %s\n", cfg.DataDir)
	fmt.Printf("Config file:    %s\n", cfg.ConfigFile())
	fmt.Printf("Params file:    %s\n", cfg.ParamsFile())
	fmt.Printf("Ledger ID:      %s\n", l.ID())
	fmt.Printf("Max proof len:  %d bytes\n", p.MaxProofLength)
	fmt.Printf("Transfer events: %v\n", p.EmitTransferEvents)
	return nil
}

// ── key ─────────────────────────────────────────────────────────────────

const keyUsage = "Usage: poe-cli key <new|import|list|address> [flags]"

func cmdKey(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New(keyUsage)
	}
	ks, err := keyring.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}

	switch args[0] {
	case "new":
		return cmdKeyNew(ks, args[1:])
	case "import":
		return cmdKeyImport(ks, args[1:])
	case "list":
		return cmdKeyList(ks)
	case "address":
		return cmdKeyAddress(ks, args[1:])
	default:
		return fmt.Errorf("unknown key command: %s\n%s", args[0], keyUsage)
	}
}

func cmdKeyNew(ks *keyring.Keystore, args []string) error {
	fs := flag.NewFlagSet("key new", flag.ExitOnError)
	name := fs.String("name", "", "Key name")
	account := fs.Uint("account", 0, "BIP-44 account index")
	fs.Parse(args)

	if *name == "" {
		return errors.New("usage: poe-cli key new --name <name> [--account n]")
	}

	mnemonic, err := keyring.GenerateMnemonic()
	if err != nil {
		return fmt.Errorf("generate mnemonic: %w", err)
	}
	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	addr, err := storeKey(ks, *name, mnemonic, uint32(*account), true)
	if err != nil {
		return err
	}
	fmt.Printf("\nKey created: %s\n", *name)
	fmt.Printf("Address: %s\n", addr)
	return nil
}

func cmdKeyImport(ks *keyring.Keystore, args []string) error {
	fs := flag.NewFlagSet("key import", flag.ExitOnError)
	name := fs.String("name", "", "Key name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic")
	account := fs.Uint("account", 0, "BIP-44 account index")
	fs.Parse(args)

	if *name == "" || *mnemonic == "" {
		return errors.New("usage: poe-cli key import --name <name> --mnemonic \"...\" [--account n]")
	}
	if !keyring.ValidateMnemonic(*mnemonic) {
		return keyring.ErrInvalidMnemonic
	}

	addr, err := storeKey(ks, *name, *mnemonic, uint32(*account), true)
	if err != nil {
		return err
	}
	fmt.Printf("Key imported: %s\n", *name)
	fmt.Printf("Address: %s\n", addr)
	return nil
}

func storeKey(ks *keyring.Keystore, name, mnemonic string, account uint32, confirm bool) (types.Address, error) {
	password, err := passwordFor(name, confirm)
	if err != nil {
		return types.Address{}, fmt.Errorf("read password: %w", err)
	}

	seed, err := keyring.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return types.Address{}, fmt.Errorf("derive seed: %w", err)
	}
	defer func() {
		for i := range seed {
			seed[i] = 0
		}
	}()

	addr, err := ks.Create(name, seed, password, keyring.DefaultKDFParams(), account)
	if err != nil {
		return types.Address{}, fmt.Errorf("create key: %w", err)
	}
	return addr, nil
}

func cmdKeyList(ks *keyring.Keystore) error {
	names, err := ks.List()
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	if len(names) == 0 {
		fmt.Println("No keys found.")
		return nil
	}
	for _, name := range names {
		addr, err := ks.Address(name)
		if err != nil {
			fmt.Printf("  %-20s (unreadable: %v)\n", name, err)
			continue
		}
		fmt.Printf("  %-20s %s\n", name, addr)
	}
	return nil
}

func cmdKeyAddress(ks *keyring.Keystore, args []string) error {
	fs := flag.NewFlagSet("key address", flag.ExitOnError)
	name := fs.String("name", "", "Key name")
	fs.Parse(args)

	if *name == "" {
		return errors.New("usage: poe-cli key address --name <name>")
	}
	addr, err := ks.Address(*name)
	if err != nil {
		return err
	}
	fmt.Println(addr)
	return nil
}

// ── claim ───────────────────────────────────────────────────────────────

const claimUsage = "Usage: poe-cli claim <create|revoke|transfer|show> [flags]"

func cmdClaim(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New(claimUsage)
	}

	switch args[0] {
	case "create", "revoke", "transfer":
		return cmdClaimSubmit(cfg, args[0], args[1:])
	case "show":
		return cmdClaimShow(cfg, args[1:])
	default:
		return fmt.Errorf("unknown claim command: %s\n%s", args[0], claimUsage)
	}
}

func cmdClaimSubmit(cfg *config.Config, action string, args []string) error {
	fs := flag.NewFlagSet("claim "+action, flag.ExitOnError)
	keyName := fs.String("key", "", "Key name")
	proofHex := fs.String("proof", "", "Proof bytes (hex)")
	file := fs.String("file", "", "Use the BLAKE3 hash of this file as the proof")
	to := fs.String("to", "", "Destination address (transfer only)")
	fs.Parse(args)

	if *keyName == "" || (*proofHex == "" && *file == "") {
		extra := ""
		if action == "transfer" {
			extra = " --to <addr>"
		}
		return fmt.Errorf("usage: poe-cli claim %s --key <name> (--proof <hex> | --file <path>)%s", action, extra)
	}

	proof, err := resolveProof(*proofHex, *file)
	if err != nil {
		return err
	}
	method, err := ledger.ParseMethod(action)
	if err != nil {
		return err
	}

	var dest types.Address
	if method == ledger.MethodTransferClaim {
		if *to == "" {
			return errors.New("transfer requires --to <addr>")
		}
		dest, err = types.ParseAddress(*to)
		if err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
	}

	ks, err := keyring.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}
	password, err := passwordFor(*keyName, false)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	signer, err := ks.Signer(*keyName, password)
	if err != nil {
		return err
	}
	defer signer.Zero()

	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	nonce, err := l.Nonce(signer.Address())
	if err != nil {
		return fmt.Errorf("read nonce: %w", err)
	}
	call := &ledger.Call{Ledger: l.ID(), Method: method, Nonce: nonce, Proof: proof, Dest: dest}
	if err := call.Sign(signer); err != nil {
		return err
	}

	rcpt, err := l.Submit(call)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}

	fmt.Printf("%s ok\n", method)
	fmt.Printf("  Caller: %s\n", rcpt.Caller)
	fmt.Printf("  Height: %d\n", rcpt.Height)
	fmt.Printf("  Nonce:  %d\n", rcpt.Nonce)
	for _, ev := range rcpt.Events {
		fmt.Printf("  Event:  %s\n", formatEvent(ev))
	}
	return nil
}

func cmdClaimShow(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("claim show", flag.ExitOnError)
	proofHex := fs.String("proof", "", "Proof bytes (hex)")
	file := fs.String("file", "", "Use the BLAKE3 hash of this file as the proof")
	fs.Parse(args)

	if *proofHex == "" && *file == "" {
		return errors.New("usage: poe-cli claim show (--proof <hex> | --file <path>)")
	}
	proof, err := resolveProof(*proofHex, *file)
	if err != nil {
		return err
	}

	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	c, ok, err := l.Claim(proof)
	if err != nil {
		return fmt.Errorf("read claim: %w", err)
	}
	if !ok {
		fmt.Println("No claim for this proof.")
		return nil
	}
	fmt.Printf("Owner:  %s\n", c.Owner)
	fmt.Printf("Height: %d\n", c.Height)
	return nil
}

// ── block ───────────────────────────────────────────────────────────────

func cmdBlock(cfg *config.Config, args []string) error {
	if len(args) < 1 || args[0] != "advance" {
		return errors.New("usage: poe-cli block advance [--count n]")
	}
	fs := flag.NewFlagSet("block advance", flag.ExitOnError)
	count := fs.Uint64("count", 1, "Number of blocks")
	fs.Parse(args[1:])

	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	h, err := l.AdvanceBlock(*count)
	if err != nil {
		return fmt.Errorf("advance block: %w", err)
	}
	fmt.Printf("Height: %d\n", h)
	return nil
}

// ── status ──────────────────────────────────────────────────────────────

func cmdStatus(cfg *config.Config) error {
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	claims, err := l.ClaimCount()
	if err != nil {
		return fmt.Errorf("count claims: %w", err)
	}
	p := l.Params()
	fmt.Printf("Ledger ID:       %s\n", l.ID())
	fmt.Printf("Height:          %d\n", l.Height())
	fmt.Printf("Claims:          %d\n", claims)
	fmt.Printf("Events:          %d\n", l.EventCount())
	fmt.Printf("Max proof len:   %d bytes\n", p.MaxProofLength)
	fmt.Printf("Transfer events: %v\n", p.EmitTransferEvents)
	return nil
}

// ── events ──────────────────────────────────────────────────────────────

func cmdEvents(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	from := fs.Uint64("from", 0, "First event sequence number")
	limit := fs.Int("limit", 50, "Maximum events to show (0 = all)")
	fs.Parse(args)

	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	recs, err := l.Events(*from, *limit)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No events.")
		return nil
	}
	for _, rec := range recs {
		fmt.Printf("#%-6d h=%-8d %s\n", rec.Seq, rec.Height, formatEvent(rec))
	}
	return nil
}

// ── Helpers ─────────────────────────────────────────────────────────────

func openLedger(cfg *config.Config) (*ledger.Ledger, error) {
	params, err := config.LoadParams(cfg.ParamsFile())
	if err != nil {
		return nil, err
	}
	db, err := storage.NewBadger(cfg.LedgerDir())
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	l, err := ledger.Open(db, params)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return l, nil
}

// passwordFor reads the keystore password from POE_PASSWORD or the terminal.
func passwordFor(name string, confirm bool) ([]byte, error) {
	if env := os.Getenv("POE_PASSWORD"); env != "" {
		return []byte(env), nil
	}
	password, err := readPassword(fmt.Sprintf("Password for %q: ", name))
	if err != nil {
		return nil, err
	}
	if confirm {
		again, err := readPassword("Confirm password: ")
		if err != nil {
			return nil, err
		}
		if string(password) != string(again) {
			return nil, fmt.Errorf("passwords do not match")
		}
	}
	if strings.TrimSpace(string(password)) == "" {
		return nil, fmt.Errorf("empty password")
	}
	return password, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
