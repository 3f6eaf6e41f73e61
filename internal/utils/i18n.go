package utils

// Server-side messages shown to participants. Keys are produced by the
// services package.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":                         "ok",
		"login.email_required":              "Please enter your email",
		"login.not_approved":                "Sorry, your email is not approved for this study",
		"login.already":                     "You are already logged in. Redirecting to annotation page...",
		"logout.ok":                         "You have been logged out.",
		"session.login_required":            "Please log in on the first page.",
		"store.retry":                       "The data store is unavailable right now. Please try again.",
		"wizard.accuracy_explanation":       "Please provide an explanation for the accuracy rating.",
		"wizard.others_explanation":         "Please provide an explanation for 'Others' in analysis detail.",
		"wizard.invalid_choice":             "Please choose one of the listed options.",
		"wizard.comprehension_range":        "Comprehension must be between 1 and 5.",
		"wizard.details_need_category":      "Please choose an analysis quality before selecting details.",
		"wizard.reference_rating_required":  "Please rate this reference.",
		"wizard.reference_comment_required": "Please explain why this reference is not good.",
		"wizard.preferred_required":         "Please select your preferred reference before submitting.",
		"wizard.best_answers_required":      "Please select at least one best answer before submitting.",
		"wizard.wrong_step":                 "This step is no longer current. Please reload.",
		"wizard.back_unavailable":           "You cannot go back from here.",
		"wizard.complete":                   "You've completed all annotation!",
		"wizard.question_changed":           "This question was already completed or reassigned. Your progress on it was discarded.",
		"wizard.submitted":                  "Response submitted!",
		"dataset.invalid":                   "The dataset file could not be loaded.",
		"dataset.mode_invalid":              "Unknown load mode; use reseed or append.",
		"export.format_invalid":             "Unknown export format; use long or wide.",
		"admin.forbidden":                   "Operator key required.",
		"request.invalid_json":              "The request body is not valid JSON.",
	},
	"zh": {
		"health.ok":                         "好的",
		"login.email_required":              "请输入您的邮箱",
		"login.not_approved":                "抱歉，您的邮箱未被批准参与本研究",
		"login.already":                     "您已登录，正在跳转到标注页面……",
		"logout.ok":                         "您已退出登录。",
		"session.login_required":            "请先在首页登录。",
		"store.retry":                       "数据存储暂时不可用，请稍后重试。",
		"wizard.accuracy_explanation":       "请说明准确性评分的理由。",
		"wizard.others_explanation":         "请说明选择“其他”的理由。",
		"wizard.invalid_choice":             "请选择列出的选项之一。",
		"wizard.comprehension_range":        "全面性评分必须在 1 到 5 之间。",
		"wizard.details_need_category":      "请先选择分析质量，再选择具体原因。",
		"wizard.reference_rating_required":  "请为该参考文献评分。",
		"wizard.reference_comment_required": "请说明该参考文献不够好的原因。",
		"wizard.preferred_required":         "提交前请选择您偏好的参考文献。",
		"wizard.best_answers_required":      "提交前请至少选择一个最佳答案。",
		"wizard.wrong_step":                 "该步骤已过期，请刷新页面。",
		"wizard.back_unavailable":           "此处无法返回上一步。",
		"wizard.complete":                   "您已完成全部标注！",
		"wizard.question_changed":           "该问题已被完成或重新分配，您在此问题上的进度已被清除。",
		"wizard.submitted":                  "提交成功！",
		"dataset.invalid":                   "数据文件无法加载。",
		"dataset.mode_invalid":              "未知的加载模式，请使用 reseed 或 append。",
		"export.format_invalid":             "未知的导出格式，请使用 long 或 wide。",
		"admin.forbidden":                   "需要管理员密钥。",
		"request.invalid_json":              "请求内容不是有效的 JSON。",
	},
}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if m, ok := translations["en"]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}
