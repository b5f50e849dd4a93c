package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrRejected 签名请求被用户拒绝
// 浏览器钱包（或任何交互式签名器）在用户点击取消时返回该错误，
// 上层据此区分「用户拒绝」与其他签名失败
var ErrRejected = errors.New("user rejected the signature request")

// IsRejected 判断错误链中是否包含用户拒绝
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

// Signer 结构化数据签名器
// 对应外部钱包暴露的能力：地址、连接状态、EIP-712 签名
type Signer interface {
	// Address 返回签名者地址
	Address() common.Address
	// IsConnected 返回钱包是否已连接（未连接时不得发起签名）
	IsConnected() bool
	// SignTypedData 对 EIP-712 结构化数据签名，返回 0x 前缀的 65 字节签名
	SignTypedData(typedData apitypes.TypedData) (string, error)
}

// LocalSigner 基于本地私钥的签名器实现
// 用于无浏览器环境（命令行工具、测试、服务端托管钱包）
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewLocalSigner 从十六进制私钥创建本地签名器
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return NewLocalSignerFromKey(key), nil
}

// NewLocalSignerFromKey 从已有私钥创建本地签名器
func NewLocalSignerFromKey(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address 返回签名者地址
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// IsConnected 本地签名器只要持有私钥即视为已连接
func (s *LocalSigner) IsConnected() bool {
	return s != nil && s.privateKey != nil
}

// SignTypedData 对 EIP-712 结构化数据签名
// 最终哈希为 keccak256("\x19\x01" + domainSeparator + structHash)
func (s *LocalSigner) SignTypedData(typedData apitypes.TypedData) (string, error) {
	if !s.IsConnected() {
		return "", errors.New("签名器未初始化")
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return "", fmt.Errorf("计算域分隔符失败: %w", err)
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return "", fmt.Errorf("计算消息哈希失败: %w", err)
	}

	rawData := []byte("\x19\x01")
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, structHash...)
	hash := crypto.Keccak256Hash(rawData)

	// crypto.Sign 返回 65 字节：r(32) + s(32) + v(1)
	signature, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("签名失败: %w", err)
	}

	return "0x" + common.Bytes2Hex(signature), nil
}
