package main

// ──────────────────────────────────────────────────────────────────────────
// fomoltctl game — inspect & drive a fomolt3d round (collision-free)
// ──────────────────────────────────────────────────────────────────────────
// Root group   : `game`
// Micro-routes : init-config, init-round, next-round, buy, claim,
//                sweep-referral, refer, status
// All handler / command identifiers are uniquely prefixed with **game** to
// avoid name clashes with other CLI modules, following the tok-prefixed
// convention the tokens CLI uses.
// ──────────────────────────────────────────────────────────────────────────

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fomolt3d/core"
	"fomolt3d/pkg/config"
	"fomolt3d/pkg/utils"
)

// -----------------------------------------------------------------------------
// Globals & middleware (runs once)
// -----------------------------------------------------------------------------

var (
	gameLedger  *core.Ledger
	gameProgram *core.Program
	gameLogger  = logrus.StandardLogger()
	gameOnce    sync.Once
)

func gameInitMiddleware(cmd *cobra.Command, _ []string) error {
	var err error
	gameOnce.Do(func() {
		_ = godotenv.Load()

		cfg, e := config.LoadFromEnv()
		if e != nil {
			err = e
			return
		}

		lvl := utils.EnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
		lv, e := logrus.ParseLevel(lvl)
		if e != nil {
			err = e
			return
		}
		gameLogger.SetLevel(lv)

		walPath := utils.EnvOrDefault("FOMOLT_WAL_PATH", cfg.Ledger.WALPath)
		if walPath == "" {
			err = fmt.Errorf("FOMOLT_WAL_PATH not set")
			return
		}
		snapPath := utils.EnvOrDefault("FOMOLT_SNAPSHOT_PATH", cfg.Ledger.SnapshotPath)
		snapInterval := cfg.Ledger.SnapshotInterval
		if snapInterval <= 0 {
			snapInterval = 1000
		}

		gameLedger, e = core.NewLedger(core.LedgerConfig{
			WALPath:          walPath,
			SnapshotPath:     snapPath,
			SnapshotInterval: snapInterval,
		})
		if e != nil {
			err = e
			return
		}
		gameProgram = core.NewProgram(gameLedger)
	})
	return err
}

// -----------------------------------------------------------------------------
// Helper utilities
// -----------------------------------------------------------------------------

func gameParseAddr(h string) (core.Address, error) {
	var a core.Address
	b, err := hex.DecodeString(strings.TrimPrefix(h, "0x"))
	if err != nil || len(b) != len(a) {
		return a, fmt.Errorf("bad address %q", h)
	}
	copy(a[:], b)
	return a, nil
}

func gameNow() int64 { return time.Now().Unix() }

// -----------------------------------------------------------------------------
// Controllers (prefixed names)
// -----------------------------------------------------------------------------

func gameHandleInitConfig(cmd *cobra.Command, args []string) error {
	admin, err := gameParseAddr(args[0])
	if err != nil {
		return err
	}
	wallet, err := gameParseAddr(args[1])
	if err != nil {
		return err
	}
	basePrice, _ := cmd.Flags().GetUint64("base-price")
	incr, _ := cmd.Flags().GetUint64("price-increment")
	timerExt, _ := cmd.Flags().GetInt64("timer-extension-secs")
	maxTimer, _ := cmd.Flags().GetInt64("max-timer-secs")
	winnerBps, _ := cmd.Flags().GetUint64("winner-bps")
	dividendBps, _ := cmd.Flags().GetUint64("dividend-bps")
	nextBps, _ := cmd.Flags().GetUint64("next-round-bps")
	feeBps, _ := cmd.Flags().GetUint64("protocol-fee-bps")
	refBps, _ := cmd.Flags().GetUint64("referral-bonus-bps")

	err = gameProgram.Config.UpsertConfig(core.UpsertConfigParams{
		Signer: admin, BasePrice: basePrice, PriceIncrement: incr,
		TimerExtensionSecs: timerExt, MaxTimerSecs: maxTimer,
		WinnerBps: winnerBps, DividendBps: dividendBps, NextRoundBps: nextBps,
		ProtocolFeeBps: feeBps, ReferralBonusBps: refBps, ProtocolWallet: wallet,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "config applied")
	return nil
}

func gameHandleInitRound(cmd *cobra.Command, args []string) error {
	admin, err := gameParseAddr(args[0])
	if err != nil {
		return err
	}
	r, err := gameProgram.Rounds.InitializeFirstRound(admin, gameNow())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "round %d initialized, timer_end=%d\n", r.Round, r.TimerEnd)
	return nil
}

func gameHandleNextRound(cmd *cobra.Command, args []string) error {
	prev, _ := cmd.Flags().GetUint64("prev-round")
	r, err := gameProgram.Rounds.StartNewRound(prev, gameNow())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "round %d started, carried pot=%d\n", r.Round, r.NextRoundPot)
	return nil
}

func gameHandleBuy(cmd *cobra.Command, args []string) error {
	buyer, err := gameParseAddr(args[0])
	if err != nil {
		return err
	}
	round, _ := cmd.Flags().GetUint64("round")
	n, _ := cmd.Flags().GetUint64("n")
	isAgent, _ := cmd.Flags().GetBool("agent")
	refStr, _ := cmd.Flags().GetString("referrer")

	p := core.BuyKeysParams{Round: round, Buyer: buyer, N: n, Now: gameNow(), IsAgent: isAgent}
	if refStr != "" {
		ref, err := gameParseAddr(refStr)
		if err != nil {
			return err
		}
		p.Referrer = &ref
	}

	res, err := gameProgram.Purchases.BuyKeys(p)
	if err != nil {
		return err
	}
	if !res.Applied {
		fmt.Fprintln(cmd.OutOrStdout(), "round auto-ended, buy not applied")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "bought %d keys for %d lamports, new_timer_end=%d\n", n, res.Cost, res.NewTimerEnd)
	return nil
}

func gameHandleClaim(cmd *cobra.Command, args []string) error {
	participant, err := gameParseAddr(args[0])
	if err != nil {
		return err
	}
	round, _ := cmd.Flags().GetUint64("round")
	res, err := gameProgram.Claims.Claim(core.ClaimParams{Round: round, Participant: participant, Now: gameNow()})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "claimed dividend=%d winner_prize=%d total=%d\n",
		res.DividendShare, res.WinnerPrize, res.Total)
	return nil
}

func gameHandleSweepReferral(cmd *cobra.Command, args []string) error {
	participant, err := gameParseAddr(args[0])
	if err != nil {
		return err
	}
	round, _ := cmd.Flags().GetUint64("round")
	swept, err := gameProgram.Claims.ClaimReferralEarnings(core.ClaimReferralEarningsParams{
		Participant: participant, AccrualRound: round,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "swept %d lamports\n", swept)
	return nil
}

func gameHandleRegisterReferrer(cmd *cobra.Command, args []string) error {
	player, err := gameParseAddr(args[0])
	if err != nil {
		return err
	}
	referrer, err := gameParseAddr(args[1])
	if err != nil {
		return err
	}
	if err := gameProgram.Claims.RegisterReferrer(core.RegisterReferrerParams{Player: player, Referrer: referrer}); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "referrer registered")
	return nil
}

func gameHandleStatus(cmd *cobra.Command, args []string) error {
	round, _ := cmd.Flags().GetUint64("round")
	r, ok := gameLedger.Round(round)
	if !ok {
		return fmt.Errorf("round %d does not exist", round)
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"round=%d address=%s vault_address=%s active=%v winner_claimed=%v total_keys=%d total_players=%d winner_pot=%d dividend_pool=%d next_round_pot=%d vault=%d last_buyer=%s\n",
		r.Round, core.RoundAddress(round), core.VaultAddress(round), r.Active, r.WinnerClaimed, r.TotalKeys,
		r.TotalPlayers, r.WinnerPot, r.TotalDividendPool, r.NextRoundPot, gameLedger.VaultBalance(round), r.LastBuyer)
	return nil
}

// -----------------------------------------------------------------------------
// Cobra command tree (game-prefixed vars)
// -----------------------------------------------------------------------------

var gameCmd = &cobra.Command{
	Use:               "game",
	Short:             "Inspect and administer a fomolt3d round",
	PersistentPreRunE: gameInitMiddleware,
}

var gameInitConfigCmd = &cobra.Command{
	Use: "init-config <admin> <protocol-wallet>", Short: "Upsert game config", Args: cobra.ExactArgs(2), RunE: gameHandleInitConfig,
}
var gameInitRoundCmd = &cobra.Command{
	Use: "init-round <admin>", Short: "Initialize round 1", Args: cobra.ExactArgs(1), RunE: gameHandleInitRound,
}
var gameNextRoundCmd = &cobra.Command{
	Use: "next-round", Short: "Start the next round", Args: cobra.NoArgs, RunE: gameHandleNextRound,
}
var gameBuyCmd = &cobra.Command{
	Use: "buy <buyer>", Short: "Buy keys", Args: cobra.ExactArgs(1), RunE: gameHandleBuy,
}
var gameClaimCmd = &cobra.Command{
	Use: "claim <participant>", Short: "Claim dividends and winner prize", Args: cobra.ExactArgs(1), RunE: gameHandleClaim,
}
var gameSweepCmd = &cobra.Command{
	Use: "sweep-referral <participant>", Short: "Sweep referral earnings", Args: cobra.ExactArgs(1), RunE: gameHandleSweepReferral,
}
var gameReferCmd = &cobra.Command{
	Use: "refer <player> <referrer>", Short: "Register a referrer", Args: cobra.ExactArgs(2), RunE: gameHandleRegisterReferrer,
}
var gameStatusCmd = &cobra.Command{
	Use: "status", Short: "Show round status", Args: cobra.NoArgs, RunE: gameHandleStatus,
}

func init() {
	gameInitConfigCmd.Flags().Uint64("base-price", 10_000_000, "base price in lamports")
	gameInitConfigCmd.Flags().Uint64("price-increment", 1_000_000, "price increment per key")
	gameInitConfigCmd.Flags().Int64("timer-extension-secs", 30, "seconds added per buy")
	gameInitConfigCmd.Flags().Int64("max-timer-secs", 86400, "timer ceiling from round start")
	gameInitConfigCmd.Flags().Uint64("winner-bps", 4800, "winner share in bps")
	gameInitConfigCmd.Flags().Uint64("dividend-bps", 4500, "dividend share in bps")
	gameInitConfigCmd.Flags().Uint64("next-round-bps", 700, "next round share in bps")
	gameInitConfigCmd.Flags().Uint64("protocol-fee-bps", 200, "protocol fee in bps")
	gameInitConfigCmd.Flags().Uint64("referral-bonus-bps", 1000, "referral bonus in bps")

	gameNextRoundCmd.Flags().Uint64("prev-round", 0, "the round to close out")
	gameNextRoundCmd.MarkFlagRequired("prev-round")

	gameBuyCmd.Flags().Uint64("round", 0, "round number")
	gameBuyCmd.Flags().Uint64("n", 1, "number of keys")
	gameBuyCmd.Flags().Bool("agent", false, "tag this participant as an automated agent")
	gameBuyCmd.Flags().String("referrer", "", "referrer address, if any")
	gameBuyCmd.MarkFlagRequired("round")

	gameClaimCmd.Flags().Uint64("round", 0, "round number")
	gameClaimCmd.MarkFlagRequired("round")

	gameSweepCmd.Flags().Uint64("round", 0, "round the earnings were accrued in")
	gameSweepCmd.MarkFlagRequired("round")

	gameStatusCmd.Flags().Uint64("round", 0, "round number")
	gameStatusCmd.MarkFlagRequired("round")

	gameCmd.AddCommand(gameInitConfigCmd, gameInitRoundCmd, gameNextRoundCmd, gameBuyCmd,
		gameClaimCmd, gameSweepCmd, gameReferCmd, gameStatusCmd)
}

// -----------------------------------------------------------------------------
// Consolidated export
// -----------------------------------------------------------------------------

var GameCmd = gameCmd

func RegisterGame(root *cobra.Command) { root.AddCommand(GameCmd) }
