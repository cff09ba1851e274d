package auth

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/gnet/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardlinedev/reality/app/server/internal/dao"
	"github.com/hardlinedev/reality/app/server/internal/metrics"
	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/app/server/internal/sessionkey"
	"github.com/hardlinedev/reality/pkg/crypto"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/wire"
)

// fakeConn 捕获出站帧的假连接
type fakeConn struct {
	frames []*wire.Frame
	closed bool
}

func (c *fakeConn) AsyncWrite(buf []byte, _ gnet.AsyncCallback) error {
	rest := buf
	for len(rest) > 0 {
		frame, consumed, err := wire.DecodeFrame(rest)
		if err != nil || frame == nil {
			return err
		}
		c.frames = append(c.frames, frame)
		rest = rest[consumed:]
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 55555}
}

func (c *fakeConn) find(msgType uint16) *wire.Frame {
	for _, f := range c.frames {
		if f.Type == msgType {
			return f
		}
	}
	return nil
}

func (c *fakeConn) last(msgType uint16) *wire.Frame {
	var out *wire.Frame
	for _, f := range c.frames {
		if f.Type == msgType {
			out = f
		}
	}
	return out
}

// fakeStores 内存账号存储
type fakeStores struct {
	accounts map[string]*model.Account
}

func (f *fakeStores) GetByUsername(_ context.Context, username string) (*model.Account, error) {
	if a, ok := f.accounts[username]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, dao.ErrNotFound
}

func (f *fakeStores) Insert(_ context.Context, username, hash, salt string) (uint32, error) {
	id := uint32(len(f.accounts) + 1)
	f.accounts[username] = &model.Account{AccountID: id, Username: username, PasswordHash: hash, PasswordSalt: salt}
	return id, nil
}

func (f *fakeStores) UpdatePassword(_ context.Context, accountID uint32, hash, salt string) error {
	for _, a := range f.accounts {
		if a.AccountID == accountID {
			a.PasswordHash = hash
			a.PasswordSalt = salt
			return nil
		}
	}
	return dao.ErrNotFound
}

func (f *fakeStores) TouchLastLogin(context.Context, uint32) error { return nil }

type fakeWorlds struct{ worlds []*model.World }

func (f *fakeWorlds) List(context.Context) ([]*model.World, error) { return f.worlds, nil }
func (f *fakeWorlds) GetByName(_ context.Context, name string) (*model.World, error) {
	for _, w := range f.worlds {
		if w.WorldName == name {
			return w, nil
		}
	}
	return nil, dao.ErrNotFound
}
func (f *fakeWorlds) Insert(_ context.Context, name string) (uint16, error) {
	id := uint16(len(f.worlds) + 1)
	f.worlds = append(f.worlds, &model.World{WorldID: id, WorldName: name, Status: model.WorldStatusOnline})
	return id, nil
}

type fakeChars struct {
	chars map[uint64]*model.Character
	next  uint64
}

func (f *fakeChars) GetByID(_ context.Context, id uint64) (*model.Character, error) {
	if c, ok := f.chars[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, dao.ErrNotFound
}
func (f *fakeChars) GetByHandle(_ context.Context, handle string) (*model.Character, error) {
	for _, c := range f.chars {
		if c.Handle == handle {
			cp := *c
			return &cp, nil
		}
	}
	return nil, dao.ErrNotFound
}
func (f *fakeChars) ListByAccountWorld(_ context.Context, accountID uint32, worldID uint16) ([]*model.Character, error) {
	out := make([]*model.Character, 0)
	for _, c := range f.chars {
		if c.AccountID == accountID && c.WorldID == worldID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}
func (f *fakeChars) Insert(_ context.Context, c *model.Character) (uint64, error) {
	f.next++
	c.CharacterID = f.next
	cp := *c
	f.chars[c.CharacterID] = &cp
	return c.CharacterID, nil
}
func (f *fakeChars) Delete(_ context.Context, accountID uint32, id uint64) error {
	if c, ok := f.chars[id]; ok && c.AccountID == accountID {
		delete(f.chars, id)
		return nil
	}
	return dao.ErrNotFound
}

type authHarness struct {
	svc   *Service
	sess  *Session
	conn  *fakeConn
	keys  *ServerKeys
	table *sessionkey.Table
}

func newAuthHarness(t *testing.T) *authHarness {
	t.Helper()

	l := logger.NewNop()

	keys, err := LoadOrGenerateKeys(t.TempDir(), l)
	require.NoError(t, err)

	salt, err := crypto.GenerateSalt(32)
	require.NoError(t, err)
	accounts := &fakeStores{accounts: map[string]*model.Account{
		"neo": {
			AccountID:    100,
			Username:     "neo",
			PasswordSalt: salt,
			PasswordHash: crypto.HashPassword(salt, "redpill1"),
		},
	}}
	worlds := &fakeWorlds{worlds: []*model.World{
		{WorldID: 1, WorldName: "Recursion", Status: model.WorldStatusOnline},
	}}
	chars := &fakeChars{chars: map[uint64]*model.Character{
		5001: {CharacterID: 5001, AccountID: 100, WorldID: 1, Handle: "Neo", FirstName: "Thomas", LastName: "Anderson", Level: 10},
	}, next: 5001}

	table := sessionkey.NewTable(time.Hour, dao.NewCacheDAO(nil, l, metrics.NewForTest()), l)

	svc := NewService(nil, keys, table, accounts, worlds, chars, metrics.NewForTest(), l)

	conn := &fakeConn{}
	sess := newSession(svc, conn)

	// OnOpen 的挑战下发
	challenge := sess.buildChallenge()
	sess.state = stateChallengeSent
	require.NoError(t, conn.AsyncWrite(challenge, nil))

	return &authHarness{svc: svc, sess: sess, conn: conn, keys: keys, table: table}
}

// sendFrame 模拟客户端送入一帧
func (h *authHarness) sendFrame(t *testing.T, msgType uint16, payload []byte) error {
	t.Helper()
	return h.sess.feed(wire.EncodeFrame(msgType, payload))
}

// login 执行成功认证，返回会话键
func (h *authHarness) login(t *testing.T) string {
	t.Helper()

	creds := wire.NewByteBuffer()
	creds.WriteString("neo")
	creds.WriteString("redpill1")
	creds.WriteUint32(0)

	ct, err := h.keys.Crypt.EncryptOAEP(creds.Bytes())
	require.NoError(t, err)

	payload := wire.NewByteBuffer()
	payload.WriteUint16(uint16(len(ct)))
	payload.WriteBytes(ct)
	require.NoError(t, h.sendFrame(t, wire.MsgAuthResponse, payload.Bytes()))

	result := h.conn.find(wire.MsgAuthResult)
	require.NotNil(t, result)

	rb := wire.NewByteBufferFrom(result.Payload)
	code, err := rb.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, wire.AuthSuccess, code)

	key, err := rb.ReadString()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(key), 32)
	require.LessOrEqual(t, len(key), 64)
	return key
}

// TestChallengeSignatureVerifies 挑战中的模数签名可被信任公钥验证
func TestChallengeSignatureVerifies(t *testing.T) {
	h := newAuthHarness(t)

	challenge := h.conn.find(wire.MsgAuthChallenge)
	require.NotNil(t, challenge)

	b := wire.NewByteBufferFrom(challenge.Payload)
	ver, err := b.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, challengeProtocolVersion, ver)

	keyBits, err := b.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(1024), keyBits)

	modLen, err := b.ReadUint16()
	require.NoError(t, err)
	modulus, err := b.ReadBytes(int(modLen))
	require.NoError(t, err)

	_, err = b.ReadUint32() // exponent
	require.NoError(t, err)

	sigLen, err := b.ReadUint16()
	require.NoError(t, err)
	sig, err := b.ReadBytes(int(sigLen))
	require.NoError(t, err)

	assert.NoError(t, h.keys.Sign1024.VerifyModulus(modulus, sig))

	// 篡改模数后验签失败
	modulus[0] ^= 0xFF
	assert.Error(t, h.keys.Sign1024.VerifyModulus(modulus, sig))
}

// TestHappyLogin 完整登录流程：认证 → 世界清单 → 角色清单 → 选择
func TestHappyLogin(t *testing.T) {
	h := newAuthHarness(t)

	key := h.login(t)
	assert.Equal(t, stateAuthenticated, h.sess.state)
	assert.Equal(t, uint32(100), h.sess.accountID)

	// 世界清单包含 Recursion
	require.NoError(t, h.sendFrame(t, wire.MsgWorldListRequest, nil))
	worlds := h.conn.find(wire.MsgWorldListResponse)
	require.NotNil(t, worlds)

	wb := wire.NewByteBufferFrom(worlds.Payload)
	count, err := wb.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(1), count)
	worldID, err := wb.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), worldID)
	name, err := wb.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "Recursion", name)

	// 角色清单包含 Neo
	req := wire.NewByteBuffer()
	req.WriteUint16(1)
	require.NoError(t, h.sendFrame(t, wire.MsgCharListRequest, req.Bytes()))
	assert.Equal(t, stateCharacterList, h.sess.state)

	chars := h.conn.find(wire.MsgCharListResponse)
	require.NotNil(t, chars)
	cb := wire.NewByteBufferFrom(chars.Payload)
	charCount, err := cb.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(1), charCount)
	charID, err := cb.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(5001), charID)
	handle, err := cb.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "Neo", handle)

	// 选择角色：会话键绑定
	sel := wire.NewByteBuffer()
	sel.WriteUint64(5001)
	require.NoError(t, h.sendFrame(t, wire.MsgCharSelectRequest, sel.Bytes()))
	assert.Equal(t, stateCharacterSelected, h.sess.state)

	selResp := h.conn.find(wire.MsgCharSelectResponse)
	require.NotNil(t, selResp)
	sb := wire.NewByteBufferFrom(selResp.Payload)
	code, err := sb.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), code)

	// 绑定后的键可供 Game/Margin 校验
	entry, err := h.table.Validate(key, 5001)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), entry.AccountID)
	assert.Equal(t, uint16(1), entry.WorldID)
}

// TestWrongPassword 凭证错误返回 AUTH_INVALID_CREDENTIALS 并关闭
func TestWrongPassword(t *testing.T) {
	h := newAuthHarness(t)

	creds := wire.NewByteBuffer()
	creds.WriteString("neo")
	creds.WriteString("bluepill")
	creds.WriteUint32(0)

	ct, err := h.keys.Crypt.EncryptOAEP(creds.Bytes())
	require.NoError(t, err)

	payload := wire.NewByteBuffer()
	payload.WriteUint16(uint16(len(ct)))
	payload.WriteBytes(ct)
	require.NoError(t, h.sendFrame(t, wire.MsgAuthResponse, payload.Bytes()))

	result := h.conn.find(wire.MsgAuthResult)
	require.NotNil(t, result)
	rb := wire.NewByteBufferFrom(result.Payload)
	code, err := rb.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, wire.AuthInvalidCredentials, code)
	assert.True(t, h.conn.closed)
}

// TestUnknownAccountSameCode 未知账号与错误口令返回同一错误码
func TestUnknownAccountSameCode(t *testing.T) {
	h := newAuthHarness(t)

	creds := wire.NewByteBuffer()
	creds.WriteString("smith")
	creds.WriteString("anything")
	creds.WriteUint32(0)

	ct, err := h.keys.Crypt.EncryptOAEP(creds.Bytes())
	require.NoError(t, err)

	payload := wire.NewByteBuffer()
	payload.WriteUint16(uint16(len(ct)))
	payload.WriteBytes(ct)
	require.NoError(t, h.sendFrame(t, wire.MsgAuthResponse, payload.Bytes()))

	rb := wire.NewByteBufferFrom(h.conn.find(wire.MsgAuthResult).Payload)
	code, err := rb.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, wire.AuthInvalidCredentials, code)
}

// TestGarbageCiphertextClosesWithoutOracle 非法密文：关闭且无结果帧
func TestGarbageCiphertextClosesWithoutOracle(t *testing.T) {
	h := newAuthHarness(t)

	payload := wire.NewByteBuffer()
	garbage := make([]byte, 256)
	payload.WriteUint16(uint16(len(garbage)))
	payload.WriteBytes(garbage)

	err := h.sendFrame(t, wire.MsgAuthResponse, payload.Bytes())
	assert.True(t, errors.Is(err, wire.ErrWireFormat))
	assert.Nil(t, h.conn.find(wire.MsgAuthResult))
}

// TestRequestBeforeAuthRejected 未认证状态的请求返回错误且状态保持
func TestRequestBeforeAuthRejected(t *testing.T) {
	h := newAuthHarness(t)

	require.NoError(t, h.sendFrame(t, wire.MsgWorldListRequest, nil))

	resp := h.conn.find(wire.MsgWorldListResponse)
	require.NotNil(t, resp)
	rb := wire.NewByteBufferFrom(resp.Payload)
	code, err := rb.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, wire.AuthNoAccess, code)
	assert.Equal(t, stateChallengeSent, h.sess.state)
}

// TestSecondLoginInvalidatesFirstKey 第二次认证作废首个键 (I3)
func TestSecondLoginInvalidatesFirstKey(t *testing.T) {
	h := newAuthHarness(t)
	first := h.login(t)
	require.NoError(t, h.table.BindCharacter(first, 1, 5001))

	h2 := &authHarness{svc: h.svc, keys: h.keys, table: h.table, conn: &fakeConn{}}
	h2.sess = newSession(h.svc, h2.conn)
	h2.sess.state = stateChallengeSent
	second := h2.login(t)

	assert.NotEqual(t, first, second)
	_, err := h.table.Validate(first, 5001)
	assert.True(t, errors.Is(err, sessionkey.ErrExpired))
}

// TestCharCreateAndDelete 创建/删除角色
func TestCharCreateAndDelete(t *testing.T) {
	h := newAuthHarness(t)
	h.login(t)

	req := wire.NewByteBuffer()
	req.WriteUint16(1)
	require.NoError(t, h.sendFrame(t, wire.MsgCharListRequest, req.Bytes()))

	create := wire.NewByteBuffer()
	create.WriteUint16(1)
	create.WriteString("Trinity")
	create.WriteString("")
	create.WriteString("")
	require.NoError(t, h.sendFrame(t, wire.MsgCharCreateRequest, create.Bytes()))

	resp := h.conn.find(wire.MsgCharCreateResponse)
	require.NotNil(t, resp)
	rb := wire.NewByteBufferFrom(resp.Payload)
	code, err := rb.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0), code)
	_, err = rb.ReadString()
	require.NoError(t, err)
	newID, err := rb.ReadUint64()
	require.NoError(t, err)

	// 重名被拒绝
	require.NoError(t, h.sendFrame(t, wire.MsgCharCreateRequest, create.Bytes()))
	dup := h.conn.last(wire.MsgCharCreateResponse)
	db := wire.NewByteBufferFrom(dup.Payload)
	dupCode, err := db.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), dupCode)

	// 删除
	del := wire.NewByteBuffer()
	del.WriteUint64(newID)
	require.NoError(t, h.sendFrame(t, wire.MsgCharDeleteRequest, del.Bytes()))
	delResp := h.conn.find(wire.MsgCharDeleteResponse)
	require.NotNil(t, delResp)
	drb := wire.NewByteBufferFrom(delResp.Payload)
	delCode, err := drb.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), delCode)
}
