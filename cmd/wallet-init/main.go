// wallet-init 从助记词派生钱包私钥，写入加密的 badger 密钥库。
// 控制面和控制台启动时从密钥库读取私钥，避免私钥出现在环境变量或配置文件里。
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/betfollow/gofollow/pkg/secretstore"
)

func main() {
	_ = godotenv.Load()

	var (
		storeDir  = flag.String("store", getenv("SECRET_STORE_DIR", "data/secrets"), "badger 密钥库目录")
		secretKey = flag.String("key", getenv("SECRET_KEY", "wallet.private_key"), "密钥库中的键名")
		derivPath = flag.String("path", "m/44'/60'/0'/0/0", "BIP-44 派生路径")
		force     = flag.Bool("force", false, "键已存在时覆盖")
	)
	flag.Parse()

	encKey, err := secretstore.ParseKey(os.Getenv("SECRETSTORE_KEY"))
	if err != nil {
		fatal(err)
	}
	if encKey == nil {
		fmt.Fprintln(os.Stderr, "警告: 未设置 SECRETSTORE_KEY，密钥库将不加密")
	}

	fmt.Fprintln(os.Stderr, "请输入助记词（12/15/18/21/24 个单词），输入完成后回车：")
	mnemonic := strings.TrimSpace(readLine())
	if mnemonic == "" {
		fatal(errors.New("助记词为空"))
	}

	pk, address, err := derive(mnemonic, *derivPath)
	if err != nil {
		fatal(err)
	}

	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *storeDir,
		EncryptionKey: encKey,
	})
	if err != nil {
		fatal(fmt.Errorf("打开密钥库失败: %w", err))
	}
	defer store.Close()

	if _, found, err := store.GetString(*secretKey); err != nil {
		fatal(err)
	} else if found && !*force {
		fatal(fmt.Errorf("键 %s 已存在（使用 -force 覆盖）", *secretKey))
	}

	if err := store.SetString(*secretKey, pk); err != nil {
		fatal(fmt.Errorf("写入密钥库失败: %w", err))
	}

	fmt.Fprintf(os.Stderr, "已写入 %s/%s，地址: %s\n", *storeDir, *secretKey, address)
}

func derive(mnemonic, derivationPath string) (privateKeyHex string, address string, err error) {
	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return "", "", fmt.Errorf("非法助记词: %w", err)
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return "", "", fmt.Errorf("非法派生路径: %w", err)
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return "", "", fmt.Errorf("派生失败: %w", err)
	}
	pk, err := w.PrivateKeyHex(acct)
	if err != nil {
		return "", "", fmt.Errorf("导出私钥失败: %w", err)
	}
	return pk, strings.ToLower(acct.Address.Hex()), nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func readLine() string {
	br := bufio.NewReader(os.Stdin)
	s, _ := br.ReadString('\n')
	return strings.TrimSpace(s)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
