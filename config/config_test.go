package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotwings/vesting"
)

func randomKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hotwings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func baseYAML(t *testing.T) string {
	t.Helper()
	return "mint: " + randomKey(t).PublicKey().String() + "\n" +
		"authority: " + randomKey(t).PublicKey().String() + "\n" +
		"source: " + randomKey(t).PublicKey().String() + "\n" +
		"liquidity: " + randomKey(t).PublicKey().String() + "\n" +
		"project_wallet: " + randomKey(t).PublicKey().String() + "\n" +
		"liquidity_destination: " + randomKey(t).PublicKey().String() + "\n" +
		"marketing_wallet: " + randomKey(t).PublicKey().String() + "\n"
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseYAML(t)))
	require.NoError(t, err)

	assert.Equal(t, vesting.HotwingsProgramID, cfg.ProgramID)
	assert.Equal(t, "devnet", cfg.Network)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.RPCURL)
	assert.Equal(t, "wss://api.devnet.solana.com", cfg.WSURL)
	assert.Equal(t, vesting.DefaultMaxHold, cfg.MaxHold)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Listen)

	lc := cfg.LedgerConfig()
	assert.Equal(t, solana.MustPublicKeyFromBase58(vesting.HotwingsProgramID), lc.ProgramID)

	tc := cfg.TaxConfig()
	assert.Empty(t, tc.Exchanges)
	assert.Equal(t, vesting.CreditSender, tc.Credit)
}

func TestLoadEnvOverrides(t *testing.T) {
	exchange := randomKey(t).PublicKey().String()
	t.Setenv("HOTWINGS_RPC_URL", "http://rpc.internal:8899")
	t.Setenv("HOTWINGS_MAX_HOLD", "1234")
	t.Setenv("HOTWINGS_CREDIT_POLICY", "recipient")
	t.Setenv("HOTWINGS_LOG_LEVEL", "debug")
	t.Setenv("HOTWINGS_EXCHANGES", exchange)

	cfg, err := Load(writeConfig(t, baseYAML(t)))
	require.NoError(t, err)
	assert.Equal(t, "http://rpc.internal:8899", cfg.RPCURL)
	assert.Equal(t, uint64(1234), cfg.MaxHold)
	assert.Equal(t, "debug", cfg.Log.Level)

	tc := cfg.TaxConfig()
	assert.Equal(t, vesting.CreditRecipient, tc.Credit)
	require.Len(t, tc.Exchanges, 1)
	assert.Equal(t, exchange, tc.Exchanges[0].String())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"missing mint":   "authority: " + randomKey(t).PublicKey().String() + "\n",
		"bad pool acct":  baseYAML(t) + "pool_token_account: not-a-key\n",
		"bad policy":     baseYAML(t) + "credit_policy: everyone\n",
		"bad exchange":   baseYAML(t) + "exchanges: [\"zzz\"]\n",
		"zero max hold":  baseYAML(t) + "max_hold: 0\n",
		"no rpc offline": baseYAML(t) + "network: custom\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadKeys(t *testing.T) {
	k := randomKey(t)
	ints := make([]int, len(k))
	for i, b := range k {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "authority.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	cfg := &Config{Keypairs: map[string]string{"authority": path}}
	keys, err := cfg.LoadKeys()
	require.NoError(t, err)
	assert.Equal(t, k, keys[k.PublicKey()])

	loaded, err := LoadKey(path)
	require.NoError(t, err)
	assert.Equal(t, k.PublicKey(), loaded.PublicKey())

	cfg.Keypairs["missing"] = filepath.Join(t.TempDir(), "nope.json")
	_, err = cfg.LoadKeys()
	assert.Error(t, err)
}
