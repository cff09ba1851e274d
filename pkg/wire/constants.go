package wire

// 认证服务消息类型 (0x0001 - 0x00FF)
const (
	MsgAuthChallenge      uint16 = 0x0001
	MsgAuthResponse       uint16 = 0x0002
	MsgAuthResult         uint16 = 0x0003
	MsgCharListRequest    uint16 = 0x0004
	MsgCharListResponse   uint16 = 0x0005
	MsgCharCreateRequest  uint16 = 0x0006
	MsgCharCreateResponse uint16 = 0x0007
	MsgCharDeleteRequest  uint16 = 0x0008
	MsgCharDeleteResponse uint16 = 0x0009
	MsgWorldListRequest   uint16 = 0x000A
	MsgWorldListResponse  uint16 = 0x000B
	MsgCharSelectRequest  uint16 = 0x000C
	MsgCharSelectResponse uint16 = 0x000D
)

// 游戏服务消息类型 (0x1000 - 0x1FFF)
const (
	MsgGameHandshake   uint16 = 0x1001
	MsgGameSession     uint16 = 0x1002
	MsgPlayerMovement  uint16 = 0x1003
	MsgPlayerState     uint16 = 0x1004
	MsgWorldState      uint16 = 0x1005
	MsgObjectCreate    uint16 = 0x1006
	MsgObjectUpdate    uint16 = 0x1007
	MsgObjectDestroy   uint16 = 0x1008
	MsgChatMessage     uint16 = 0x1009
	MsgPlayerCommand   uint16 = 0x100A
	MsgRegionLoad      uint16 = 0x100B
	MsgJackoutRequest  uint16 = 0x100C
	MsgJackoutResponse uint16 = 0x100D
)

// 玩家状态标志位
const (
	PlayerStateCombat     uint32 = 0x0001
	PlayerStateSitting    uint32 = 0x0002
	PlayerStateDead       uint32 = 0x0004
	PlayerStateInvisible  uint32 = 0x0008
	PlayerStatePvpEnabled uint32 = 0x0010
	PlayerStateRunning    uint32 = 0x0020
	PlayerStateStealthed  uint32 = 0x0040
	PlayerStateAfk        uint32 = 0x0080
)

// Margin 服务消息类型 (0x2000 - 0x2FFF)
const (
	MsgMissionListRequest  uint16 = 0x2001
	MsgMissionListResponse uint16 = 0x2002
	MsgMissionAccept       uint16 = 0x2003
	MsgMissionUpdate       uint16 = 0x2004
	MsgMissionComplete     uint16 = 0x2005
	MsgDialogueRequest     uint16 = 0x2006
	MsgDialogueResponse    uint16 = 0x2007
	MsgDialogueChoice      uint16 = 0x2008
)

// 字节型玩家命令 (0x00 - 0xFF)
const (
	CmdReadyForSpawn         uint8 = 0x01
	CmdChat                  uint8 = 0x02
	CmdWhisper               uint8 = 0x03
	CmdStopAnimation         uint8 = 0x04
	CmdStartAnimation        uint8 = 0x05
	CmdChangeMood            uint8 = 0x06
	CmdPerformEmote          uint8 = 0x07
	CmdDynamicObjInteraction uint8 = 0x08
	CmdStaticObjInteraction  uint8 = 0x09
	CmdJump                  uint8 = 0x0A
	CmdRegionLoaded          uint8 = 0x0B
	CmdReadyForWorldChange   uint8 = 0x0C
	CmdWho                   uint8 = 0x0D
	CmdWhereAmI              uint8 = 0x0E
	CmdGetPlayerDetails      uint8 = 0x0F
	CmdGetBackground         uint8 = 0x10
	CmdSetBackground         uint8 = 0x11
	CmdHardlineTeleport      uint8 = 0x12
	CmdObjectSelected        uint8 = 0x13
	CmdJackoutRequest        uint8 = 0x14
	CmdJackoutFinished       uint8 = 0x15
)

// 短整型玩家命令 (0x0100 - 0xFFFF)
// 载荷首字节为 0x00 时，命令号取随后的 u16。
const (
	CmdAbilityUse      uint16 = 0x0100
	CmdTradeRequest    uint16 = 0x0101
	CmdTradeAccept     uint16 = 0x0102
	CmdTradeDecline    uint16 = 0x0103
	CmdTradeCancel     uint16 = 0x0104
	CmdTradeAddItem    uint16 = 0x0105
	CmdTradeRemoveItem uint16 = 0x0106
	CmdTradeSetInfo    uint16 = 0x0107
	CmdTradeConfirm    uint16 = 0x0108
	CmdGroupInvite     uint16 = 0x0109
	CmdGroupAccept     uint16 = 0x010A
	CmdGroupDecline    uint16 = 0x010B
	CmdGroupLeave      uint16 = 0x010C
	CmdGroupKick       uint16 = 0x010D
	CmdGroupPromote    uint16 = 0x010E
	CmdGroupDisband    uint16 = 0x010F
)

// ShortCommandMarker 短命令分支的首字节标记
const ShortCommandMarker uint8 = 0x00

// 聊天消息类型
const (
	ChatSay       uint8 = 0x00
	ChatYell      uint8 = 0x01
	ChatWhisper   uint8 = 0x02
	ChatGroup     uint8 = 0x03
	ChatFaction   uint8 = 0x04
	ChatSystem    uint8 = 0x05
	ChatEmote     uint8 = 0x06
	ChatOOC       uint8 = 0x07
	ChatBroadcast uint8 = 0x08
)

// 认证结果码
const (
	AuthSuccess              uint16 = 0x00
	AuthInvalidCredentials   uint16 = 0x01
	AuthAccountBanned        uint16 = 0x02
	AuthServerFull           uint16 = 0x03
	AuthAlreadyLoggedIn      uint16 = 0x04
	AuthInvalidClientVersion uint16 = 0x05
	AuthInternalError        uint16 = 0x06
	AuthAccountSuspended     uint16 = 0x07
	AuthNoAccess             uint16 = 0x08
	AuthMaintenance          uint16 = 0x09
)

// 对象类型
const (
	ObjectTypeNone         uint16 = 0x0000
	ObjectTypePlayer       uint16 = 0x0001
	ObjectTypeNPC          uint16 = 0x0002
	ObjectTypeItem         uint16 = 0x0003
	ObjectTypeContainer    uint16 = 0x0004
	ObjectTypeHardline     uint16 = 0x0005
	ObjectTypeDoor         uint16 = 0x0006
	ObjectTypeComputer     uint16 = 0x0007
	ObjectTypeMissionGiver uint16 = 0x0008
	ObjectTypeVendor       uint16 = 0x0009
	ObjectTypeTrainer      uint16 = 0x000A
	ObjectTypeInteractive  uint16 = 0x000B
	ObjectTypeElevator     uint16 = 0x000C
	ObjectTypePortal       uint16 = 0x000D
)

// 动画 ID
const (
	AnimStand      uint8 = 0x00
	AnimWalk       uint8 = 0x01
	AnimRun        uint8 = 0x02
	AnimJump       uint8 = 0x03
	AnimCombatIdle uint8 = 0x04
	AnimCombatWalk uint8 = 0x05
	AnimCombatRun  uint8 = 0x06
	AnimCombatJump uint8 = 0x07
	AnimSit        uint8 = 0x08
	AnimKneel      uint8 = 0x09
	AnimDeath      uint8 = 0x0A
	AnimWave       uint8 = 0x0B
	AnimBow        uint8 = 0x0C
	AnimClap       uint8 = 0x0D
	AnimDance      uint8 = 0x0E
	AnimLaugh      uint8 = 0x0F
	AnimPoint      uint8 = 0x10
	AnimShrug      uint8 = 0x11
	AnimTaunt      uint8 = 0x12
	AnimMeditate   uint8 = 0x13
)

// 表情 ID
const (
	MoodNeutral    uint8 = 0x00
	MoodHappy      uint8 = 0x01
	MoodSad        uint8 = 0x02
	MoodAngry      uint8 = 0x03
	MoodSurprised  uint8 = 0x04
	MoodAfraid     uint8 = 0x05
	MoodDisgusted  uint8 = 0x06
	MoodBored      uint8 = 0x07
	MoodDetermined uint8 = 0x08
	MoodConfused   uint8 = 0x09
	MoodSuspicious uint8 = 0x0A
)

// 城区 ID
const (
	DistrictRichland      uint8 = 0x01
	DistrictDowntown      uint8 = 0x02
	DistrictWestview      uint8 = 0x03
	DistrictInternational uint8 = 0x04
	DistrictUeno          uint8 = 0x05
	DistrictStamos        uint8 = 0x06
	DistrictTabor         uint8 = 0x07
	DistrictEdgewater     uint8 = 0x08
	DistrictGracy         uint8 = 0x09
	DistrictHistoric      uint8 = 0x0A
	DistrictCenter        uint8 = 0x0B
	DistrictKedemoth      uint8 = 0x0C
)

// 职业 ID
const (
	ProfessionNone      uint8 = 0x00
	ProfessionCoder     uint8 = 0x01
	ProfessionHacker    uint8 = 0x02
	ProfessionOperative uint8 = 0x03
	ProfessionRedpill   uint8 = 0x04
)

// 阵营 ID
const (
	AlignmentNeutral     uint8 = 0x00
	AlignmentZion        uint8 = 0x01
	AlignmentMachine     uint8 = 0x02
	AlignmentMerovingian uint8 = 0x03
)

// 数据报标志位
const (
	PacketFlagReliable   uint8 = 0x01
	PacketFlagEncrypted  uint8 = 0x02
	PacketFlagCompressed uint8 = 0x04
	PacketFlagFragment   uint8 = 0x08
)
